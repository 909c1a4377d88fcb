package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/wasock"
)

type fakeBlobStore struct {
	keys    []string
	failPut bool
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.failPut {
		return "", errors.New("bucket offline")
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type fakeSocket struct {
	wasock.Socket
	media   []byte
	downErr error
}

func (f *fakeSocket) DownloadMedia(ctx context.Context, msg *wasock.RawMessage) ([]byte, error) {
	if f.downErr != nil {
		return nil, f.downErr
	}
	return f.media, nil
}

func testSession() *Session {
	return newSession("sess-1", "acct-9", "")
}

func TestClassifyTextVariants(t *testing.T) {
	p := NewProcessor(nil)
	s := testSession()

	plain := p.Classify(context.Background(), s, nil, &wasock.RawMessage{
		Key:       wasock.MessageKey{ID: "m1", RemoteJID: "551199@s.whatsapp.net"},
		Timestamp: int64(1700000000),
		Message:   &wasock.MessagePayload{Conversation: "hello"},
	})
	if plain.MessageType != event.TypeText || plain.Content.Text != "hello" {
		t.Errorf("conversation classified as %s %q", plain.MessageType, plain.Content.Text)
	}
	if plain.TimestampSeconds != 1700000000 {
		t.Errorf("timestamp = %d, want 1700000000", plain.TimestampSeconds)
	}
	if plain.SessionID != "sess-1" || plain.OwnerID != "acct-9" {
		t.Error("session/owner attribution missing")
	}

	extended := p.Classify(context.Background(), s, nil, &wasock.RawMessage{
		Key: wasock.MessageKey{ID: "m2", RemoteJID: "551199@s.whatsapp.net"},
		Message: &wasock.MessagePayload{
			ExtendedText: &wasock.ExtendedTextMessage{
				Text: "reply",
				ContextInfo: &wasock.ContextInfo{
					QuotedMessage: map[string]interface{}{"conversation": "original"},
					MentionedJIDs: []string{"5511@s.whatsapp.net"},
				},
			},
		},
	})
	if extended.MessageType != event.TypeText || extended.Content.Text != "reply" {
		t.Errorf("extended text classified as %s %q", extended.MessageType, extended.Content.Text)
	}
	if extended.Content.QuotedMessage == nil {
		t.Error("quoted message dropped")
	}
	if len(extended.Content.MentionedIDs) != 1 {
		t.Error("mentions dropped")
	}
}

func TestClassifyMediaArchivesIntoBlobStore(t *testing.T) {
	blobs := &fakeBlobStore{}
	p := NewProcessor(blobs)
	s := testSession()
	sock := &fakeSocket{media: []byte("jpegbytes")}

	evt := p.Classify(context.Background(), s, sock, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: "m2", RemoteJID: "5511@s.whatsapp.net"},
		Message: &wasock.MessagePayload{Image: &wasock.MediaPart{Caption: "pic", MimeType: "image/jpeg"}},
	})

	if evt.MessageType != event.TypeImage {
		t.Fatalf("classified as %s, want image", evt.MessageType)
	}
	if evt.Content.Caption != "pic" || evt.Content.MimeType != "image/jpeg" {
		t.Error("caption or mime dropped")
	}
	if evt.Content.MediaURL == "" {
		t.Fatal("media URL missing")
	}
	if len(blobs.keys) != 1 {
		t.Fatalf("blob store saw %d puts, want 1", len(blobs.keys))
	}
	key := blobs.keys[0]
	if !strings.HasPrefix(key, "sess-1/uploads/") || !strings.HasSuffix(key, ".jpeg") {
		t.Errorf("blob key %q, want sess-1/uploads/<uuid>.jpeg", key)
	}
}

func TestClassifyMediaExtensions(t *testing.T) {
	cases := []struct {
		name    string
		payload *wasock.MessagePayload
		wantExt string
		want    event.MessageType
	}{
		{"sticker", &wasock.MessagePayload{Sticker: &wasock.MediaPart{MimeType: "image/webp"}}, ".webp", event.TypeSticker},
		{"video", &wasock.MessagePayload{Video: &wasock.MediaPart{MimeType: "video/mp4"}}, ".mp4", event.TypeVideo},
		{"audio", &wasock.MessagePayload{Audio: &wasock.MediaPart{MimeType: "audio/ogg"}}, ".ogg", event.TypeAudio},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blobs := &fakeBlobStore{}
			p := NewProcessor(blobs)
			evt := p.Classify(context.Background(), testSession(), &fakeSocket{media: []byte("x")}, &wasock.RawMessage{
				Key:     wasock.MessageKey{ID: "m3", RemoteJID: "5511@s.whatsapp.net"},
				Message: tc.payload,
			})
			if evt.MessageType != tc.want {
				t.Fatalf("classified as %s, want %s", evt.MessageType, tc.want)
			}
			if len(blobs.keys) != 1 || !strings.HasSuffix(blobs.keys[0], tc.wantExt) {
				t.Errorf("blob keys %v, want one ending %s", blobs.keys, tc.wantExt)
			}
		})
	}
}

func TestClassifyMediaFailureDegrades(t *testing.T) {
	p := NewProcessor(&fakeBlobStore{})
	evt := p.Classify(context.Background(), testSession(), &fakeSocket{downErr: errors.New("gone")}, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: "m4", RemoteJID: "5511@s.whatsapp.net"},
		Message: &wasock.MessagePayload{Image: &wasock.MediaPart{MimeType: "image/jpeg", Caption: "pic"}},
	})
	if evt.MessageType != event.TypeImage {
		t.Fatalf("classified as %s, want image", evt.MessageType)
	}
	if evt.Content.MediaURL != "" {
		t.Error("media URL set despite download failure")
	}
	if evt.Content.Caption != "pic" {
		t.Error("caption lost on degraded event")
	}

	// Upload failure degrades the same way
	p = NewProcessor(&fakeBlobStore{failPut: true})
	evt = p.Classify(context.Background(), testSession(), &fakeSocket{media: []byte("x")}, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: "m5", RemoteJID: "5511@s.whatsapp.net"},
		Message: &wasock.MessagePayload{Image: &wasock.MediaPart{MimeType: "image/jpeg"}},
	})
	if evt.Content.MediaURL != "" {
		t.Error("media URL set despite upload failure")
	}
}

func TestClassifyContactAndLocation(t *testing.T) {
	p := NewProcessor(nil)

	contact := p.Classify(context.Background(), testSession(), nil, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: "m6", RemoteJID: "5511@s.whatsapp.net"},
		Message: &wasock.MessagePayload{Contact: &wasock.ContactPart{DisplayName: "Ana", VCard: "BEGIN:VCARD"}},
	})
	if contact.MessageType != event.TypeContact || contact.Content.Text != "BEGIN:VCARD" {
		t.Errorf("contact classified as %s", contact.MessageType)
	}

	loc := p.Classify(context.Background(), testSession(), nil, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: "m7", RemoteJID: "5511@s.whatsapp.net"},
		Message: &wasock.MessagePayload{Location: &wasock.LocationPart{Latitude: -23.5, Longitude: -46.6, Name: "HQ"}},
	})
	if loc.MessageType != event.TypeLocation {
		t.Fatalf("location classified as %s", loc.MessageType)
	}
	if loc.Content.Location == nil || loc.Content.Location.Latitude != -23.5 {
		t.Error("location coordinates dropped")
	}
}

func TestClassifyUnknownPayload(t *testing.T) {
	p := NewProcessor(nil)

	empty := p.Classify(context.Background(), testSession(), nil, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: "m8", RemoteJID: "5511@s.whatsapp.net"},
		Message: &wasock.MessagePayload{},
	})
	if empty == nil || empty.MessageType != event.TypeUnknown {
		t.Errorf("empty payload classified as %+v", empty)
	}
}

func TestClassifyRejectsUndeliverable(t *testing.T) {
	p := NewProcessor(nil)
	key := wasock.MessageKey{ID: "m1", RemoteJID: "5511@s.whatsapp.net"}

	if got := p.Classify(context.Background(), testSession(), nil, &wasock.RawMessage{Key: key}); got != nil {
		t.Errorf("bodyless message classified as %+v", got)
	}
	if got := p.Classify(context.Background(), testSession(), nil, &wasock.RawMessage{
		Key:     wasock.MessageKey{RemoteJID: key.RemoteJID},
		Message: &wasock.MessagePayload{Conversation: "hi"},
	}); got != nil {
		t.Errorf("keyless message classified as %+v", got)
	}
	if got := p.Classify(context.Background(), testSession(), nil, &wasock.RawMessage{
		Key:     wasock.MessageKey{ID: key.ID},
		Message: &wasock.MessagePayload{Conversation: "hi"},
	}); got != nil {
		t.Errorf("message without counterpart classified as %+v", got)
	}
}

func TestDocumentExtension(t *testing.T) {
	cases := []struct {
		fileName string
		mimeType string
		want     string
	}{
		{"report.xlsx", "application/octet-stream", "xlsx"},
		{"README.TXT", "", "txt"},
		{"", "application/vnd.ms-excel", "xls"},
		{"", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
		{"", "application/msword", "doc"},
		{"", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx"},
		{"", "application/vnd.ms-powerpoint", "ppt"},
		{"", "application/vnd.openxmlformats-officedocument.presentationml.presentation", "pptx"},
		{"", "text/plain", "txt"},
		{"", "text/plain; charset=utf-8", "txt"},
		{"", "application/pdf", "pdf"},
		{"noext", "", "bin"},
		{"", "", "bin"},
	}

	for _, tc := range cases {
		if got := documentExtension(tc.fileName, tc.mimeType); got != tc.want {
			t.Errorf("documentExtension(%q, %q) = %q, want %q", tc.fileName, tc.mimeType, got, tc.want)
		}
	}
}

func TestAckLabelTotality(t *testing.T) {
	want := map[int]event.AckLabel{
		0: event.AckError,
		1: event.AckPending,
		2: event.AckServer,
		3: event.AckDelivery,
		4: event.AckRead,
		5: event.AckPlayed,
	}
	for status, label := range want {
		if got := AckLabelFor(status); got != label {
			t.Errorf("AckLabelFor(%d) = %s, want %s", status, got, label)
		}
	}
	if got := AckLabelFor(9); got != event.AckUnknown {
		t.Errorf("AckLabelFor(9) = %s, want UNKNOWN", got)
	}
	if got := AckLabelFor(-1); got != event.AckUnknown {
		t.Errorf("AckLabelFor(-1) = %s, want UNKNOWN", got)
	}
}

func TestClassifyAck(t *testing.T) {
	p := NewProcessor(nil)
	s := testSession()

	status := 4
	evt := p.ClassifyAck(s, wasock.StatusUpdate{
		Key:    wasock.MessageKey{ID: "m1", RemoteJID: "5511@s.whatsapp.net", FromMe: true},
		Status: &status,
	})
	if evt == nil {
		t.Fatal("ack event is nil")
	}
	if evt.AckStatus != 4 || evt.AckLabel != event.AckRead {
		t.Errorf("ack mapped to %d/%s", evt.AckStatus, evt.AckLabel)
	}
	if !evt.FromMe || evt.MessageID != "m1" {
		t.Error("ack key fields dropped")
	}

	if p.ClassifyAck(s, wasock.StatusUpdate{Key: wasock.MessageKey{ID: "m2"}}) != nil {
		t.Error("statusless update produced an event")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{int64(1700000000), 1700000000},
		{int(42), 42},
		{uint64(7), 7},
		{float64(1700000000), 1700000000},
		{json.Number("1700000001"), 1700000001},
		{"1700000002", 1700000002},
	}
	for _, tc := range cases {
		if got := normalizeTimestamp(tc.in); got != tc.want {
			t.Errorf("normalizeTimestamp(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}

	// Missing or garbage timestamps fall back to the current time
	for _, in := range []interface{}{nil, "not-a-number", json.Number("nope"), struct{}{}} {
		before := time.Now().Unix()
		got := normalizeTimestamp(in)
		if got < before || got > time.Now().Unix() {
			t.Errorf("normalizeTimestamp(%v) = %d, want current unix seconds", in, got)
		}
	}
}
