package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeS3 struct {
	puts map[string][]byte
	in   *s3.PutObjectInput
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[*in.Key] = data
	f.in = in
	return &s3.PutObjectOutput{}, nil
}

func TestLocator(t *testing.T) {
	cases := []struct{ base, name, want string }{
		{"https://images.s3.amazonaws.com", "Alice/24-01-02-03-04-05.jpg", "https://images.s3.amazonaws.com/Alice/24-01-02-03-04-05.jpg"},
		{"https://cdn.example.com/", "a b/x.jpg", "https://cdn.example.com/a%20b/x.jpg"},
	}
	for _, c := range cases {
		if got := Locator(c.base, c.name); got != c.want {
			t.Errorf("Locator(%q, %q) = %q, want %q", c.base, c.name, got, c.want)
		}
	}
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3StoreWithClient(fake, S3Config{Bucket: "images", Logger: testLogger()})

	data := []byte{0xff, 0xd8, 0xff, 0xe0}
	ref, err := store.Put(context.Background(), "Alice/24-01-02-03-04-05.jpg", data, "image/jpeg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref.Locator != "https://images.s3.amazonaws.com/Alice/24-01-02-03-04-05.jpg" {
		t.Errorf("unexpected locator %s", ref.Locator)
	}
	if ref.Bucket != "images" || ref.Key != "Alice/24-01-02-03-04-05.jpg" {
		t.Errorf("unexpected ref %+v", ref)
	}
	if !bytes.Equal(fake.puts[ref.Key], data) {
		t.Error("uploaded bytes differ")
	}
	if *fake.in.Bucket != "images" || *fake.in.ContentType != "image/jpeg" {
		t.Errorf("unexpected request: bucket=%s type=%s", *fake.in.Bucket, *fake.in.ContentType)
	}
}

func TestS3Store_PutOverwrites(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3StoreWithClient(fake, S3Config{Bucket: "images", PublicBaseURL: "https://cdn.example.com", Logger: testLogger()})
	ctx := context.Background()

	if _, err := store.Put(ctx, "k.jpg", []byte("one"), ""); err != nil {
		t.Fatal(err)
	}
	ref, err := store.Put(ctx, "k.jpg", []byte("two"), "")
	if err != nil {
		t.Fatal(err)
	}
	if string(fake.puts["k.jpg"]) != "two" {
		t.Errorf("expected overwrite, got %q", fake.puts["k.jpg"])
	}
	if ref.Locator != "https://cdn.example.com/k.jpg" {
		t.Errorf("unexpected locator %s", ref.Locator)
	}
}

func TestS3Store_PutError(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3{err: errors.New("AccessDenied")}, S3Config{Bucket: "images", Logger: testLogger()})
	if _, err := store.Put(context.Background(), "k.jpg", []byte("x"), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestFSStore_PutAndRead(t *testing.T) {
	root := t.TempDir()
	store := NewFSStore(root, "images", "", testLogger())

	ref, err := store.Put(context.Background(), "Bob/24-05-06-07-08-09.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "images", "Bob", "24-05-06-07-08-09.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "png-bytes" {
		t.Errorf("unexpected content %q", got)
	}
	if ref.Locator != "https://images.s3.amazonaws.com/Bob/24-05-06-07-08-09.png" {
		t.Errorf("unexpected locator %s", ref.Locator)
	}
}

func TestFSStore_RejectsEscapingNames(t *testing.T) {
	store := NewFSStore(t.TempDir(), "images", "", testLogger())
	if _, err := store.Put(context.Background(), "../../etc/passwd", []byte("x"), ""); err == nil {
		t.Fatal("expected error for a name outside the bucket")
	}
}
