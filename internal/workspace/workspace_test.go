package workspace

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/fpang/caption-studio/internal/blobstore"
	"github.com/fpang/caption-studio/internal/dedupe"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/ingest"
	"github.com/fpang/caption-studio/internal/metrics"
	"github.com/fpang/caption-studio/internal/rename"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/store"
)

type fixture struct {
	records *store.MemoryStore
	blobs   *blobstore.MemoryStore
	ws      *Workspace
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	prev := metrics.SetOutput(io.Discard)
	t.Cleanup(func() { metrics.SetOutput(prev) })

	f := &fixture{records: store.NewMemoryStore(), blobs: blobstore.NewMemoryStore()}
	seq := 0
	if opts.IDGenerator == nil {
		opts.IDGenerator = func() string {
			seq++
			return fmt.Sprintf("id%02d", seq)
		}
	}
	if opts.AutosaveDelay == 0 {
		opts.AutosaveDelay = time.Hour
	}
	f.ws = New(f.records, f.blobs, opts)
	t.Cleanup(func() { f.ws.Close(context.Background()) })
	return f
}

func (f *fixture) project(t *testing.T) string {
	t.Helper()
	p, err := f.ws.CreateProject(context.Background(), "  Cats  ")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return p.ID
}

func (f *fixture) upload(t *testing.T, pid string, items ...ingest.UploadItem) *ingest.Result {
	t.Helper()
	res, err := f.ws.Upload(context.Background(), pid, items)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return res
}

func img(name, content string) ingest.UploadItem {
	return ingest.FromBytes(name, "", []byte(content))
}

func txt(name, text string) ingest.UploadItem {
	return ingest.FromBytes(name, "text/plain", []byte(text))
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	if _, err := f.ws.CreateProject(ctx, "   "); status.KindOf(err) != status.UserInput {
		t.Errorf("blank name: kind = %v, want UserInput", status.KindOf(err))
	}

	pid := f.project(t)
	p, err := f.ws.Project(ctx, pid)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if p.Name != "Cats" {
		t.Errorf("Name = %q, want trimmed %q", p.Name, "Cats")
	}

	ps, err := f.ws.ListProjects(ctx)
	if err != nil || len(ps) != 1 {
		t.Fatalf("ListProjects() = %v, %v", ps, err)
	}

	if _, err := f.ws.Project(ctx, "missing"); status.KindOf(err) != status.NotFound {
		t.Errorf("missing project: kind = %v, want NotFound", status.KindOf(err))
	}
	if _, err := f.ws.Images(ctx, ""); status.KindOf(err) != status.UserInput {
		t.Errorf("no project: kind = %v, want UserInput", status.KindOf(err))
	}
}

func TestUpload_OutOfOrderCaption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)

	f.upload(t, pid, txt("cat.txt", "orange tabby"))
	pending, err := f.ws.Pending(ctx, pid)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Text != "orange tabby" {
		t.Fatalf("Pending() = %+v, want the cat caption", pending)
	}

	res := f.upload(t, pid, img("cat.JPG", "pixels"))
	if len(res.Created) != 1 || res.Created[0].Caption != "orange tabby" {
		t.Fatalf("Created = %+v, want cat with pending caption", res.Created)
	}
	if pending, _ := f.ws.Pending(ctx, pid); len(pending) != 0 {
		t.Errorf("Pending() after match = %+v, want empty", pending)
	}

	f.upload(t, pid, txt("dog.txt", "good boy"))
	n, err := f.ws.ClearPending(ctx, pid)
	if err != nil || n != 1 {
		t.Errorf("ClearPending() = %d, %v; want 1, nil", n, err)
	}
}

func TestSetCaption_Autosave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	id := f.upload(t, pid, img("a.jpg", "a")).Created[0].ID

	if err := f.ws.SetCaption(ctx, pid, id, "draft", false); err != nil {
		t.Fatalf("SetCaption() error = %v", err)
	}
	rec, _ := f.records.GetImage(ctx, pid, id)
	if rec.Caption != "" {
		t.Errorf("caption saved before flush: %q", rec.Caption)
	}
	if err := f.ws.FlushCaptions(ctx); err != nil {
		t.Fatalf("FlushCaptions() error = %v", err)
	}
	rec, _ = f.records.GetImage(ctx, pid, id)
	if rec.Caption != "draft" {
		t.Errorf("caption after flush = %q, want draft", rec.Caption)
	}

	if err := f.ws.SetCaption(ctx, pid, id, "final", true); err != nil {
		t.Fatalf("SetCaption(immediate) error = %v", err)
	}
	rec, _ = f.records.GetImage(ctx, pid, id)
	if rec.Caption != "final" {
		t.Errorf("immediate caption = %q, want final", rec.Caption)
	}

	if err := f.ws.SetCaption(ctx, pid, "nope", "x", true); status.KindOf(err) != status.NotFound {
		t.Errorf("missing image: kind = %v, want NotFound", status.KindOf(err))
	}
}

func TestBulkEdits_FlushPendingFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	res := f.upload(t, pid, img("a.jpg", "a"), img("b.jpg", "b"), txt("a.txt", "cat"))
	a, b := res.Created[0].ID, res.Created[1].ID

	// The debounced edit must land before the prefix is applied on top.
	if err := f.ws.SetCaption(ctx, pid, b, "dog", false); err != nil {
		t.Fatal(err)
	}
	n, err := f.ws.AddPrefix(ctx, pid, nil, "sks", false)
	if err != nil || n != 2 {
		t.Fatalf("AddPrefix() = %d, %v; want 2, nil", n, err)
	}

	n, err = f.ws.SearchReplace(ctx, pid, []string{a}, "cat", "kitten")
	if err != nil || n != 1 {
		t.Fatalf("SearchReplace() = %d, %v; want 1, nil", n, err)
	}
	recs, err := f.ws.InsertToken(ctx, pid, []string{b}, "outdoors")
	if err != nil || len(recs) != 1 {
		t.Fatalf("InsertToken() = %v, %v", recs, err)
	}

	want := map[string]string{a: "sks kitten", b: "sks dog outdoors"}
	for id, caption := range want {
		rec, _ := f.records.GetImage(ctx, pid, id)
		if rec.Caption != caption {
			t.Errorf("caption of %s = %q, want %q", id, rec.Caption, caption)
		}
	}

	if _, err := f.ws.InsertToken(ctx, pid, nil, "x"); status.KindOf(err) != status.UserInput {
		t.Errorf("InsertToken without selection: kind = %v, want UserInput", status.KindOf(err))
	}
}

func TestDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	f.upload(t, pid, img("a.jpg", "same"), img("b.jpg", "same"), img("c.jpg", "same"), img("d.jpg", "other"))

	groups, err := f.ws.FindDuplicates(ctx, pid, dedupe.ByContent)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(groups) != 1 || len(groups[0]) != 3 {
		t.Fatalf("groups = %v, want one group of 3", groups)
	}

	removed, err := f.ws.RemoveDuplicates(ctx, pid, dedupe.ByContent)
	if err != nil || len(removed) != 2 {
		t.Fatalf("RemoveDuplicates() = %d, %v; want 2, nil", len(removed), err)
	}
	recs, _ := f.ws.Images(ctx, pid)
	if len(recs) != 2 {
		t.Errorf("images left = %d, want 2", len(recs))
	}
	if keys := f.blobs.Keys(blobstore.ProjectPrefix(pid)); len(keys) != 2 {
		t.Errorf("blobs left = %v, want 2", keys)
	}

	if _, err := f.ws.FindDuplicates(ctx, pid, dedupe.ByContent); !status.IsNoOp(err) {
		t.Errorf("second scan error = %v, want NoOp", err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	f.upload(t, pid, img("x.PNG", "1"), img("y.jpeg", "2"), ingest.FromBytes("z", "image/png", []byte("3")))

	plan, res, err := f.ws.Rename(ctx, pid, "shot", rename.ByCreatedAt, true)
	if err != nil {
		t.Fatalf("Rename(dry run) error = %v", err)
	}
	if len(plan) != 3 || res.Renamed != 0 {
		t.Fatalf("dry run plan = %d, renamed = %d", len(plan), res.Renamed)
	}
	recs, _ := f.ws.Images(ctx, pid)
	if recs[0].OriginalName != "x.PNG" {
		t.Errorf("dry run renamed %q", recs[0].OriginalName)
	}

	_, res, err = f.ws.Rename(ctx, pid, "shot", rename.ByCreatedAt, false)
	if err != nil || res.Renamed != 3 {
		t.Fatalf("Rename() = %+v, %v", res, err)
	}
	recs, _ = f.ws.Images(ctx, pid)
	var names []string
	for _, r := range recs {
		names = append(names, r.OriginalName)
	}
	want := []string{"shot_001.png", "shot_002.jpeg", "shot_003.jpg"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	if _, _, err := f.ws.Rename(ctx, pid, "a/b", rename.ByCreatedAt, true); status.KindOf(err) != status.UserInput {
		t.Errorf("base with separator: kind = %v, want UserInput", status.KindOf(err))
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	f.upload(t, pid, img("a.jpg", "a"), txt("a.txt", "cat"), img("b.jpg", "b"))

	var buf bytes.Buffer
	sum, err := f.ws.Export(ctx, &buf, pid, export.Options{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if sum.Images != 2 || sum.Captions != 1 {
		t.Errorf("Summary = %+v, want 2 images 1 caption", sum)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("archive unreadable: %v", err)
	}
	if len(zr.File) != 3 {
		t.Errorf("entries = %d, want 3", len(zr.File))
	}
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)

	added, err := f.ws.AddTokens(ctx, pid, "red, blue; red")
	if err != nil || len(added) != 2 {
		t.Fatalf("AddTokens() = %v, %v", added, err)
	}
	if _, err := f.ws.AddTokens(ctx, pid, "blue"); !status.IsNoOp(err) {
		t.Errorf("re-adding = %v, want NoOp", err)
	}
	if err := f.ws.DeleteToken(ctx, pid, "red"); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}
	got, _ := f.ws.Tokens(ctx, pid)
	if fmt.Sprint(got) != "[blue]" {
		t.Errorf("Tokens() = %v, want [blue]", got)
	}
	if _, err := f.ws.Tokens(ctx, "missing"); status.KindOf(err) != status.NotFound {
		t.Errorf("missing project: kind = %v", status.KindOf(err))
	}
}

func TestDeleteProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	f.upload(t, pid, img("a.jpg", "a"), img("b.jpg", "b"), txt("orphan.txt", "waiting"))
	if _, err := f.ws.AddTokens(ctx, pid, "red"); err != nil {
		t.Fatal(err)
	}

	if err := f.ws.DeleteProject(ctx, pid); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if p, _ := f.records.GetProject(ctx, pid); p != nil {
		t.Error("project record survived")
	}
	if recs, _ := f.records.ListImages(ctx, pid); len(recs) != 0 {
		t.Errorf("image records survived: %d", len(recs))
	}
	if toks, _ := f.records.ListTokens(ctx, pid); len(toks) != 0 {
		t.Errorf("tokens survived: %v", toks)
	}
	if keys := f.blobs.Keys(blobstore.ProjectPrefix(pid)); len(keys) != 0 {
		t.Errorf("blobs survived: %v", keys)
	}
	if _, err := f.ws.Pending(ctx, pid); status.KindOf(err) != status.NotFound {
		t.Errorf("Pending after delete: kind = %v, want NotFound", status.KindOf(err))
	}
}

func TestDeleteImage_AndOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	pid := f.project(t)
	id := f.upload(t, pid, img("a.jpg", "pixels")).Created[0].ID

	_, rc, err := f.ws.OpenImage(ctx, pid, id)
	if err != nil {
		t.Fatalf("OpenImage() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "pixels" {
		t.Errorf("content = %q", data)
	}

	if err := f.ws.DeleteImage(ctx, pid, id); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	if _, _, err := f.ws.OpenImage(ctx, pid, id); status.KindOf(err) != status.NotFound {
		t.Errorf("OpenImage after delete: kind = %v, want NotFound", status.KindOf(err))
	}
}

func TestDeleteImage_CancelsPendingCaption(t *testing.T) {
	ctx := context.Background()
	var failed []string
	f := newFixture(t, Options{OnAutosaveError: func(_, iid string, _ error) { failed = append(failed, iid) }})
	pid := f.project(t)
	res := f.upload(t, pid, img("a.jpg", "same"), img("b.jpg", "same"), img("c.jpg", "solo"))
	a, b, c := res.Created[0].ID, res.Created[1].ID, res.Created[2].ID

	for _, id := range []string{a, b, c} {
		if err := f.ws.SetCaption(ctx, pid, id, "draft", false); err != nil {
			t.Fatalf("SetCaption(%s) error = %v", id, err)
		}
	}
	if err := f.ws.DeleteImage(ctx, pid, c); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	if err := f.ws.SetCaption(ctx, pid, b, "edited", false); err != nil {
		t.Fatalf("SetCaption() error = %v", err)
	}
	removed, err := f.ws.RemoveDuplicates(ctx, pid, dedupe.ByContent)
	if err != nil || len(removed) != 1 || removed[0].ID != b {
		t.Fatalf("RemoveDuplicates() = %v, %v; want [%s]", removed, err, b)
	}

	if err := f.ws.FlushCaptions(ctx); err != nil {
		t.Errorf("FlushCaptions() error = %v, want nil after deletes", err)
	}
	if len(failed) != 0 {
		t.Errorf("autosave failures for %v, want none", failed)
	}
	rec, err := f.ws.Image(ctx, pid, a)
	if err != nil || rec.Caption != "draft" {
		t.Errorf("kept image caption = %v, %v; want draft", rec, err)
	}
}

type fakePresigner struct{ expiry time.Duration }

func (p *fakePresigner) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	p.expiry = expiry
	return "https://signed.example/" + key, nil
}

func TestImageURL(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Options{})
	pid := f.project(t)
	id := f.upload(t, pid, img("a.jpg", "a")).Created[0].ID
	if _, ok, err := f.ws.ImageURL(ctx, pid, id); ok || err != nil {
		t.Errorf("ImageURL without presigner = %v, %v; want false, nil", ok, err)
	}

	ps := &fakePresigner{}
	f = newFixture(t, Options{Presigner: ps, PresignExpiry: time.Minute})
	pid = f.project(t)
	id = f.upload(t, pid, img("a.jpg", "a")).Created[0].ID
	url, ok, err := f.ws.ImageURL(ctx, pid, id)
	if err != nil || !ok {
		t.Fatalf("ImageURL() = %q, %v, %v", url, ok, err)
	}
	if ps.expiry != time.Minute {
		t.Errorf("expiry = %v, want 1m", ps.expiry)
	}
}
