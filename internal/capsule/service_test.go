package capsule

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/timecapsule/internal/auth"
	"github.com/MrSnakeDoc/timecapsule/internal/domain"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// ─────────────────────────────
// Fakes
// ─────────────────────────────

type fakeRepo struct {
	mu sync.Mutex

	capsules      map[uuid.UUID]*domain.Capsule
	collaborators map[uuid.UUID][]string
	media         map[uuid.UUID][]domain.MediaItem

	insertErr error
	collabErr error
	mediaErr  map[string]error // by file name
	listCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		capsules:      map[uuid.UUID]*domain.Capsule{},
		collaborators: map[uuid.UUID][]string{},
		media:         map[uuid.UUID][]domain.MediaItem{},
		mediaErr:      map[string]error{},
	}
}

func (r *fakeRepo) InsertCapsule(_ context.Context, c *domain.Capsule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	r.capsules[c.ID] = &cp
	return nil
}

func (r *fakeRepo) InsertCollaborators(_ context.Context, id uuid.UUID, emails []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.collabErr != nil {
		return r.collabErr
	}
	r.collaborators[id] = append(r.collaborators[id], emails...)
	return nil
}

func (r *fakeRepo) InsertMedia(_ context.Context, m *domain.MediaItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mediaErr[m.FileName]; err != nil {
		return err
	}
	m.ID = uuid.New()
	r.media[m.CapsuleID] = append(r.media[m.CapsuleID], *m)
	return nil
}

func (r *fakeRepo) hydrate(c domain.Capsule) domain.Capsule {
	c.Media = append([]domain.MediaItem{}, r.media[c.ID]...)
	c.Collaborators = nil
	for _, e := range r.collaborators[c.ID] {
		c.Collaborators = append(c.Collaborators, domain.Collaborator{CapsuleID: c.ID, Email: e})
	}
	return c
}

func (r *fakeRepo) ListCapsules(_ context.Context, owner uuid.UUID) ([]domain.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []domain.Capsule
	for _, c := range r.capsules {
		if c.OwnerID == owner {
			out = append(out, r.hydrate(*c))
		}
	}
	return out, nil
}

func (r *fakeRepo) ListSharedWith(_ context.Context, email string, exclude uuid.UUID) ([]domain.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Capsule
	for _, c := range r.capsules {
		h := r.hydrate(*c)
		if c.IsShared && c.OwnerID != exclude && h.HasCollaborator(email) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetCapsule(_ context.Context, id uuid.UUID) (*domain.Capsule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	h := r.hydrate(*c)
	return &h, nil
}

func (r *fakeRepo) DeleteCapsule(_ context.Context, owner, id uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.capsules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.OwnerID != owner {
		return nil, domain.ErrForbidden
	}
	var paths []string
	for _, m := range r.media[id] {
		paths = append(paths, m.StoragePath)
	}
	delete(r.capsules, id)
	delete(r.media, id)
	delete(r.collaborators, id)
	return paths, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	keys    []string
	failFor map[string]bool // by file name suffix
}

func (o *fakeObjects) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if _, err := io.ReadAll(body); err != nil {
		return err
	}
	for name := range o.failFor {
		if strings.HasSuffix(key, name) {
			return errors.New("storage unavailable")
		}
	}
	o.mu.Lock()
	o.keys = append(o.keys, key)
	o.mu.Unlock()
	return nil
}

func (o *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.test/" + key, nil
}

type fakeOrphans struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeOrphans) QueueOrphans(_ context.Context, paths ...string) error {
	f.mu.Lock()
	f.paths = append(f.paths, paths...)
	f.mu.Unlock()
	return nil
}

type fakePrompts struct{ forgotten []uuid.UUID }

func (f *fakePrompts) Forget(id uuid.UUID) { f.forgotten = append(f.forgotten, id) }

func upload(name, contentType string, size int64) Upload {
	return Upload{
		FileName:    name,
		ContentType: contentType,
		Size:        size,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("data")), nil
		},
	}
}

type fixture struct {
	repo    *fakeRepo
	objects *fakeObjects
	orphans *fakeOrphans
	prompts *fakePrompts
	svc     *Service
	now     time.Time
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		repo:    newFakeRepo(),
		objects: &fakeObjects{failFor: map[string]bool{}},
		orphans: &fakeOrphans{},
		prompts: &fakePrompts{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if opts.UploadFanout == 0 {
		opts.UploadFanout = 3
	}
	f.svc = NewService(f.repo, f.objects, nil, f.orphans, f.prompts, opts, logger.Nop()).
		WithClock(func() time.Time { return f.now })
	return f
}

var owner = auth.Session{UserID: uuid.New(), Email: "owner@x.com"}

func validInput() CreateInput {
	return CreateInput{
		Title:      "  Letter to future me ",
		Tags:       []string{"family", " ", "summer"},
		UnlockDate: "2030-06-01",
		UnlockTime: "09:30",
	}
}

// ─────────────────────────────
// Create
// ─────────────────────────────

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		input func(in *CreateInput)
		field string
	}{
		{"empty title", func(in *CreateInput) { in.Title = "   " }, "title"},
		{"missing date", func(in *CreateInput) { in.UnlockDate = "" }, "unlock_date"},
		{"malformed date", func(in *CreateInput) { in.UnlockDate = "01/06/2030" }, "unlock_date"},
		{"unknown zone", func(in *CreateInput) { in.Timezone = "Mars/Olympus" }, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{})
			in := validInput()
			tt.input(&in)

			_, err := f.svc.Create(context.Background(), owner, in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Create() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			if len(f.repo.capsules) != 0 {
				t.Error("a capsule was written despite the validation failure")
			}
		})
	}
}

func TestCreateInsertFailure(t *testing.T) {
	f := newFixture(Options{})
	f.repo.insertErr = errors.New("connection reset")

	in := validInput()
	in.Media = []Upload{upload("a.jpg", "image/jpeg", 10)}
	_, err := f.svc.Create(context.Background(), owner, in)
	if !domain.IsDependency(err) {
		t.Fatalf("Create() error = %v, want DependencyError", err)
	}
	if len(f.objects.keys) != 0 {
		t.Errorf("uploaded %d objects after a failed insert", len(f.objects.keys))
	}
}

func TestCreatePartialUploadFailure(t *testing.T) {
	f := newFixture(Options{})
	f.objects.failFor["b.mp4"] = true

	in := validInput()
	in.IsShared = true
	in.SharedEmails = []string{"x@y.com", "z@w.com"}
	in.Media = []Upload{
		upload("a.jpg", "image/jpeg", 10),
		upload("b.mp4", "video/mp4", 10),
		upload("c.mp3", "", 10),
	}

	res, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	id := res.Capsule.ID
	if got := len(f.repo.media[id]); got != 2 {
		t.Errorf("media rows = %d, want 2", got)
	}
	if got := f.repo.collaborators[id]; !reflect.DeepEqual(got, []string{"x@y.com", "z@w.com"}) {
		t.Errorf("collaborators = %v", got)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].FileName != "b.mp4" || res.Skipped[0].Reason != reasonUpload {
		t.Errorf("Skipped = %+v", res.Skipped)
	}

	var names []string
	for _, m := range res.Capsule.Media {
		names = append(names, m.FileName)
	}
	if !reflect.DeepEqual(names, []string{"a.jpg", "c.mp3"}) {
		t.Errorf("media order = %v, want selection order", names)
	}
	if res.Capsule.Media[1].Kind != domain.MediaAudio {
		t.Errorf("c.mp3 kind = %q, want audio", res.Capsule.Media[1].Kind)
	}
	if res.Capsule.Title != "Letter to future me" {
		t.Errorf("title = %q, want trimmed", res.Capsule.Title)
	}
	if !reflect.DeepEqual(res.Capsule.Tags, []string{"family", "summer"}) {
		t.Errorf("tags = %v", res.Capsule.Tags)
	}
	if len(f.prompts.forgotten) != 1 || f.prompts.forgotten[0] != owner.UserID {
		t.Errorf("prompt cache not cleared: %v", f.prompts.forgotten)
	}
}

func TestCreateMetadataFailureQueuesOrphan(t *testing.T) {
	f := newFixture(Options{})
	f.repo.mediaErr["a.jpg"] = errors.New("constraint")

	in := validInput()
	in.Media = []Upload{upload("a.jpg", "image/jpeg", 10)}

	res, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(res.Capsule.Media) != 0 {
		t.Errorf("media = %v, want none", res.Capsule.Media)
	}
	if len(f.orphans.paths) != 1 || f.orphans.paths[0] != f.objects.keys[0] {
		t.Errorf("orphans = %v, uploaded = %v", f.orphans.paths, f.objects.keys)
	}
}

func TestCreateCollaboratorFailureIsNonFatal(t *testing.T) {
	f := newFixture(Options{})
	f.repo.collabErr = errors.New("timeout")

	in := validInput()
	in.IsShared = true
	in.SharedEmails = []string{"x@y.com"}

	res, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(res.Capsule.Collaborators) != 0 {
		t.Errorf("collaborators = %v, want none", res.Capsule.Collaborators)
	}
}

func TestCreateNotSharedIgnoresEmails(t *testing.T) {
	f := newFixture(Options{})
	in := validInput()
	in.SharedEmails = []string{"x@y.com"}

	res, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := f.repo.collaborators[res.Capsule.ID]; len(got) != 0 {
		t.Errorf("collaborators = %v, want none for a private capsule", got)
	}
}

func TestCreateUploadLimits(t *testing.T) {
	f := newFixture(Options{MaxMediaSize: 100, MaxMediaFiles: 2})

	in := validInput()
	in.Media = []Upload{
		upload("big.mov", "video/quicktime", 101),
		upload("a.jpg", "image/jpeg", 100),
		upload("b.jpg", "image/jpeg", 1),
		upload("c.jpg", "image/jpeg", 1),
	}

	res, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(res.Capsule.Media) != 2 {
		t.Errorf("media = %d, want 2", len(res.Capsule.Media))
	}
	want := []SkippedUpload{
		{FileName: "big.mov", Reason: reasonTooLarge},
		{FileName: "c.jpg", Reason: reasonTooMany},
	}
	if !reflect.DeepEqual(res.Skipped, want) {
		t.Errorf("Skipped = %+v, want %+v", res.Skipped, want)
	}
}

func TestCreateSameFileNamesGetDistinctKeys(t *testing.T) {
	f := newFixture(Options{})
	in := validInput()
	in.Media = []Upload{upload("img.png", "image/png", 1), upload("img.png", "image/png", 1)}

	if _, err := f.svc.Create(context.Background(), owner, in); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(f.objects.keys) != 2 || f.objects.keys[0] == f.objects.keys[1] {
		t.Errorf("keys = %v, want two distinct", f.objects.keys)
	}
}

// ─────────────────────────────
// Read side
// ─────────────────────────────

func seed(t *testing.T, f *fixture, in CreateInput) uuid.UUID {
	t.Helper()
	res, err := f.svc.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return res.Capsule.ID
}

func TestGetProjectsLockState(t *testing.T) {
	f := newFixture(Options{})
	in := validInput()
	in.Description = "secret"
	in.Media = []Upload{upload("a.jpg", "image/jpeg", 1)}
	id := seed(t, f, in)

	// 2030-06-01 is years away from the fixture clock.
	v, err := f.svc.Get(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.State != domain.StateLocked || v.Description != "" || v.Media != nil {
		t.Errorf("locked view leaked content: %+v", v)
	}
	if v.Countdown == nil || v.Countdown.Unit != domain.UnitDays || v.MediaCount != 1 {
		t.Errorf("locked view = %+v", v)
	}
	if v.SealedMessage == "" {
		t.Error("locked view has no sealed message")
	}

	f.now = time.Date(2030, 6, 1, 9, 30, 0, 0, time.UTC)
	v, err = f.svc.Get(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.State != domain.StateUnlocked || v.Description != "secret" || v.Countdown != nil {
		t.Errorf("unlocked view = %+v", v)
	}
	images := v.Media[domain.MediaImage]
	if len(images) != 1 || !strings.HasPrefix(images[0].URL, "https://cdn.test/") {
		t.Errorf("unlocked media = %+v", v.Media)
	}
}

func TestVisibilityAndDelete(t *testing.T) {
	f := newFixture(Options{})
	in := validInput()
	in.IsShared = true
	in.SharedEmails = []string{"Friend@X.com"}
	in.Media = []Upload{upload("a.jpg", "image/jpeg", 1)}
	id := seed(t, f, in)

	friend := auth.Session{UserID: uuid.New(), Email: "friend@x.com"}
	stranger := auth.Session{UserID: uuid.New(), Email: "nobody@x.com"}

	if _, err := f.svc.Get(context.Background(), friend, id); err != nil {
		t.Errorf("collaborator Get() error = %v", err)
	}
	if _, err := f.svc.Get(context.Background(), stranger, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stranger Get() error = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(context.Background(), friend, id); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("collaborator Delete() error = %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(context.Background(), stranger, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stranger Delete() error = %v, want ErrNotFound", err)
	}

	if err := f.svc.Delete(context.Background(), owner, id); err != nil {
		t.Fatalf("owner Delete() error = %v", err)
	}
	if len(f.orphans.paths) != 1 {
		t.Errorf("orphans = %v, want the deleted media path", f.orphans.paths)
	}
	if _, err := f.svc.Get(context.Background(), owner, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestListAndStats(t *testing.T) {
	f := newFixture(Options{})

	past := validInput()
	past.UnlockDate = "2020-01-01"
	seed(t, f, past)
	seed(t, f, validInput())

	// Unlock exactly now counts as unlocked.
	edge := validInput()
	edge.UnlockDate = "2026-03-01"
	edge.UnlockTime = "12:00"
	seed(t, f, edge)

	other := auth.Session{UserID: uuid.New(), Email: "pal@x.com"}
	shared := validInput()
	shared.IsShared = true
	shared.SharedEmails = []string{"pal@x.com"}
	seed(t, f, shared)

	st, err := f.svc.Stats(context.Background(), owner)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := Stats{Total: 4, Locked: 2, Unlocked: 2, Shared: 0}
	if *st != want {
		t.Errorf("Stats() = %+v, want %+v", *st, want)
	}

	l, err := f.svc.List(context.Background(), other)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(l.Owned) != 0 || len(l.Shared) != 1 {
		t.Fatalf("List() owned=%d shared=%d", len(l.Owned), len(l.Shared))
	}
	if l.Shared[0].IsOwner || l.Shared[0].Collaborators != nil {
		t.Errorf("shared view exposes owner fields: %+v", l.Shared[0])
	}
}

// ─────────────────────────────
// Input helpers
// ─────────────────────────────

func TestParseUnlockAt(t *testing.T) {
	tests := []struct {
		name              string
		date, clock, zone string
		want              time.Time
		wantErr           bool
	}{
		{"date only is midnight utc", "2030-01-02", "", "", time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), false},
		{"with time", "2030-01-02", "13:45", "", time.Date(2030, 1, 2, 13, 45, 0, 0, time.UTC), false},
		{"with seconds", "2030-01-02", "13:45:10", "UTC", time.Date(2030, 1, 2, 13, 45, 10, 0, time.UTC), false},
		{"zone applied", "2030-01-02", "09:00", "Europe/Paris", time.Date(2030, 1, 2, 8, 0, 0, 0, time.UTC), false},
		{"past accepted", "1999-12-31", "", "", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"bad clock", "2030-01-02", "25:00", "", time.Time{}, true},
		{"empty", "", "", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnlockAt(tt.date, tt.clock, tt.zone, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUnlockAt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseUnlockAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{}},
		{"a, b ,,c", []string{"a", "b", "c"}},
		{"a@x.com, b@x.com, a@x.com", []string{"a@x.com", "b@x.com", "a@x.com"}},
	}
	for _, tt := range tests {
		if got := SplitList(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
