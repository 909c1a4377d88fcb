package file

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}
	if err := fs.Connect(context.Background()); err != nil {
		t.Fatalf("storage connect: %v", err)
	}
	return fs
}

func sampleRecord(id, owner string) *repository.SessionRecord {
	now := time.Now().Truncate(time.Second)
	return &repository.SessionRecord{
		ID:             id,
		OwnerID:        owner,
		Name:           "line",
		Status:         "starting",
		LastActivityAt: now,
		Created:        now,
		Updated:        now,
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Sessions()

	if err := repo.Save(ctx, sampleRecord("s1", "acct")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.OwnerID != "acct" || got.Name != "line" || got.Status != "starting" {
		t.Errorf("got %+v", got)
	}

	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("missing record returned %v, want ErrNotFound", err)
	}
}

func TestSessionRecordMutations(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Sessions()

	if err := repo.Save(ctx, sampleRecord("s1", "acct")); err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateStatus(ctx, "s1", "connected"); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if err := repo.SetWebhook(ctx, "s1", repository.WebhookConfig{
		URL:    "https://hooks.example.com",
		Secret: "topsecret",
		Events: []string{"message"},
	}); err != nil {
		t.Fatalf("set webhook failed: %v", err)
	}
	at := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := repo.TouchActivity(ctx, "s1", at); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "connected" || got.WebhookURL != "https://hooks.example.com" {
		t.Errorf("got %+v", got)
	}
	if got.WebhookSecret != "topsecret" || len(got.WebhookEvents) != 1 {
		t.Errorf("webhook config %+v", got)
	}
	if !got.LastActivityAt.Equal(at) {
		t.Errorf("activity %v, want %v", got.LastActivityAt, at)
	}

	if err := repo.UpdateStatus(ctx, "ghost", "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("mutating missing record returned %v", err)
	}
}

func TestSessionRecordListAndDelete(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Sessions()

	for _, tc := range []struct{ id, owner string }{
		{"s1", "acct-a"}, {"s2", "acct-a"}, {"s3", "acct-b"},
	} {
		if err := repo.Save(ctx, sampleRecord(tc.id, tc.owner)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("list returned %d (%v)", len(all), err)
	}

	mine, err := repo.ListByOwner(ctx, "acct-a")
	if err != nil || len(mine) != 2 {
		t.Fatalf("owner list returned %d (%v)", len(mine), err)
	}

	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Error("record survived delete")
	}
	// Deleting twice is fine
	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Errorf("second delete returned %v", err)
	}
}

func TestSessionIDSanitization(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Sessions()

	record := sampleRecord("tenant/42:line", "acct")
	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := repo.Get(ctx, "tenant/42:line")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != "tenant/42:line" {
		t.Errorf("id %q mangled", got.ID)
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Credentials()

	if err := repo.SaveOwner(ctx, "s1", "acct"); err != nil {
		t.Fatalf("save owner failed: %v", err)
	}
	if err := repo.Save(ctx, "s1", []byte("device-jid")); err != nil {
		t.Fatalf("save blob failed: %v", err)
	}

	owner, err := repo.Owner(ctx, "s1")
	if err != nil || owner != "acct" {
		t.Errorf("owner %q (%v)", owner, err)
	}
	blob, err := repo.Get(ctx, "s1")
	if err != nil || string(blob) != "device-jid" {
		t.Errorf("blob %q (%v)", blob, err)
	}

	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("missing blob returned %v", err)
	}
	if _, err := repo.Owner(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("missing owner returned %v", err)
	}
}

func TestCredentialsListOnlyCompleteSets(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Credentials()

	if err := repo.SaveOwner(ctx, "paired", "acct"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, "paired", []byte("jid")); err != nil {
		t.Fatal(err)
	}
	// Owner written but pairing never completed: no blob
	if err := repo.SaveOwner(ctx, "pending", "acct"); err != nil {
		t.Fatal(err)
	}

	ids, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "paired" {
		t.Errorf("list %v, want [paired]", ids)
	}
}

func TestCredentialsDelete(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()
	repo := fs.Credentials()

	if err := repo.SaveOwner(ctx, "s1", "acct"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, "s1", []byte("jid")); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Error("blob survived delete")
	}
	if _, err := repo.Owner(ctx, "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Error("owner mapping survived delete")
	}
}
