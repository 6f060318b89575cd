package database

import (
	"context"
	"testing"
	"time"

	"github.com/callgate/callgate/internal/database/models"
)

func TestAccessRepositories(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	bl := NewBlacklistRepository(db)
	wl := NewWhitelistRepository(db)
	fu := NewFailedUnlockRepository(db)

	if err := bl.Create(ctx, &models.Blacklist{CallerID: "+15559990000", Reason: "auto: 3 failed unlocks", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("blacklist Create() error: %v", err)
	}
	entry, err := bl.GetByCallerID(ctx, "+15559990000")
	if err != nil || entry == nil {
		t.Fatalf("blacklist GetByCallerID() = %+v, %v", entry, err)
	}

	if err := wl.Create(ctx, &models.Whitelist{CallerID: "+15551110000", Note: "owner", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("whitelist Create() error: %v", err)
	}
	wentry, err := wl.GetByCallerID(ctx, "+15551110000")
	if err != nil || wentry == nil {
		t.Fatalf("whitelist GetByCallerID() = %+v, %v", wentry, err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := fu.Create(ctx, &models.FailedUnlockCall{CallerID: "+15552223333", CallID: "c", CodeTried: "0000", CreatedAt: now}); err != nil {
			t.Fatalf("failed-unlock Create() error: %v", err)
		}
	}
	count, err := fu.CountSince(ctx, "+15552223333", now.Add(-12*time.Hour))
	if err != nil {
		t.Fatalf("CountSince() error: %v", err)
	}
	if count != 3 {
		t.Errorf("CountSince() = %d, want 3", count)
	}

	if err := bl.Delete(ctx, "+15559990000"); err != nil {
		t.Fatalf("blacklist Delete() error: %v", err)
	}
	entry, err = bl.GetByCallerID(ctx, "+15559990000")
	if err != nil {
		t.Fatalf("blacklist GetByCallerID() after delete error: %v", err)
	}
	if entry != nil {
		t.Error("blacklist entry should be gone after Delete()")
	}
}
