package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"mpak/internal/adapters/github"
	"mpak/internal/core/artifact"
	"mpak/internal/core/provenance"
	"mpak/internal/core/release"
	"mpak/internal/modkit/repokit"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/store"
	"mpak/internal/services/registry/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// in-memory catalog with copy-on-begin transactions

type pkgRow struct {
	ID         string
	Kind       artifact.Kind
	Name       string
	ClaimedBy  string
	SourceRepo string
	Latest     *release.Latest
	Downloads  int64
}

type verRow struct {
	ID          string
	PackageID   string
	Version     string
	Prerelease  bool
	Manifest    json.RawMessage
	ReleaseTag  *string
	Readme      *string
	ServerJSON  json.RawMessage
	PublishedBy string
	Provenance  json.RawMessage
	Downloads   int64
	seq         int
}

type artRow struct {
	domain.Artifact
	seq       int
	Downloads int64
}

type memState struct {
	seq  int
	pkgs map[string]*pkgRow // by name
	vers map[string]*verRow // by package id + "@" + version
	arts map[string]*artRow // by version id + "/" + os + "/" + arch
}

func newMemState() *memState {
	return &memState{pkgs: map[string]*pkgRow{}, vers: map[string]*verRow{}, arts: map[string]*artRow{}}
}

func (s *memState) clone() *memState {
	c := &memState{seq: s.seq, pkgs: map[string]*pkgRow{}, vers: map[string]*verRow{}, arts: map[string]*artRow{}}
	for k, v := range s.pkgs {
		cp := *v
		if v.Latest != nil {
			l := *v.Latest
			cp.Latest = &l
		}
		c.pkgs[k] = &cp
	}
	for k, v := range s.vers {
		cp := *v
		c.vers[k] = &cp
	}
	for k, v := range s.arts {
		cp := *v
		c.arts[k] = &cp
	}
	return c
}

func (s *memState) nextID(prefix string) string {
	s.seq++
	return prefix + "-" + strconv.Itoa(s.seq)
}

func (s *memState) pkgByID(id string) *pkgRow {
	for _, p := range s.pkgs {
		if p.ID == id {
			return p
		}
	}
	return nil
}

type memDB struct {
	mu    sync.Mutex
	st    *memState
	execs []string

	failOn         map[string]error
	serialFailures int
	commits        int
}

func newMemDB() *memDB { return &memDB{st: newMemState(), failOn: map[string]error{}} }

type fakeTag struct{}

func (fakeTag) String() string      { return "" }
func (fakeTag) RowsAffected() int64 { return 0 }

func (d *memDB) Exec(_ context.Context, sql string, _ ...any) (store.CommandTag, error) {
	d.execs = append(d.execs, sql)
	return fakeTag{}, nil
}
func (d *memDB) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (d *memDB) QueryRow(context.Context, string, ...any) store.Row        { return nil }

func (d *memDB) Tx(_ context.Context, fn func(q store.RowQuerier) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	work := d.st.clone()
	if err := fn(&memTx{db: d, st: work}); err != nil {
		return err
	}
	if d.serialFailures > 0 {
		d.serialFailures--
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	d.st = work
	d.commits++
	return nil
}

// snapshot returns a copy of the committed state
func (d *memDB) snapshot() *memState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.clone()
}

type memTx struct {
	db *memDB
	st *memState
}

func (t *memTx) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}
func (t *memTx) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) store.Row        { return nil }

var memBinder = repokit.BindFunc[domain.Repo](func(q repokit.Queryer) domain.Repo {
	switch x := q.(type) {
	case *memTx:
		return &memRepo{db: x.db, st: x.st}
	case *memDB:
		return &memRepo{db: x, auto: true}
	}
	panic("memBinder: unexpected queryer")
})

type memRepo struct {
	db   *memDB
	st   *memState
	auto bool
}

var _ domain.Repo = (*memRepo)(nil)

func (r *memRepo) with(op string, fn func(st *memState) error) error {
	if r.auto {
		r.db.mu.Lock()
		defer r.db.mu.Unlock()
	}
	if err := r.db.failOn[op]; err != nil {
		return err
	}
	if r.auto {
		return fn(r.db.st)
	}
	return fn(r.st)
}

func (r *memRepo) UpsertPackage(_ context.Context, in domain.PackageUpsert) (out domain.Upserted, err error) {
	err = r.with("UpsertPackage", func(st *memState) error {
		if p, ok := st.pkgs[in.Name]; ok {
			out = domain.Upserted{ID: p.ID}
			return nil
		}
		p := &pkgRow{ID: st.nextID("pkg"), Kind: in.Kind, Name: in.Name, ClaimedBy: in.ClaimedBy, SourceRepo: in.SourceRepo}
		st.pkgs[in.Name] = p
		out = domain.Upserted{ID: p.ID, Created: true}
		return nil
	})
	return out, err
}

func (r *memRepo) LockLatest(_ context.Context, packageID string) (out *release.Latest, err error) {
	err = r.with("LockLatest", func(st *memState) error {
		p := st.pkgByID(packageID)
		if p == nil {
			return perr.NotFoundf("package not found")
		}
		if p.Latest != nil {
			l := *p.Latest
			if v, ok := st.vers[packageID+"@"+l.Version]; ok {
				l.Prerelease = v.Prerelease
			}
			out = &l
		}
		return nil
	})
	return out, err
}

func (r *memRepo) NewestStable(_ context.Context, packageID string) (out string, err error) {
	err = r.with("NewestStable", func(st *memState) error {
		best := -1
		for _, v := range st.vers {
			if v.PackageID == packageID && !v.Prerelease && v.seq > best {
				best, out = v.seq, v.Version
			}
		}
		return nil
	})
	return out, err
}

func (r *memRepo) SetLatest(_ context.Context, packageID, version string) error {
	return r.with("SetLatest", func(st *memState) error {
		p := st.pkgByID(packageID)
		v, ok := st.vers[packageID+"@"+version]
		if p == nil || !ok {
			return perr.NotFoundf("version not found")
		}
		p.Latest = &release.Latest{Version: version, Prerelease: v.Prerelease}
		return nil
	})
}

func (r *memRepo) UpsertVersion(_ context.Context, in domain.VersionUpsert) (out domain.VersionUpserted, err error) {
	err = r.with("UpsertVersion", func(st *memState) error {
		key := in.PackageID + "@" + in.Version
		if v, ok := st.vers[key]; ok {
			v.Manifest = in.Manifest
			v.Prerelease = in.Prerelease
			if in.ReleaseTag != nil {
				v.ReleaseTag = in.ReleaseTag
			}
			if in.Readme != nil {
				v.Readme = in.Readme
			}
			if in.ServerJSON != nil {
				v.ServerJSON = in.ServerJSON
			}
			out = domain.VersionUpserted{Upserted: domain.Upserted{ID: v.ID}, PrevProvenance: v.Provenance}
			if in.Provenance != nil {
				v.Provenance = in.Provenance
			}
			return nil
		}
		v := &verRow{
			ID: st.nextID("ver"), PackageID: in.PackageID, Version: in.Version, Prerelease: in.Prerelease,
			Manifest: in.Manifest, ReleaseTag: in.ReleaseTag, Readme: in.Readme, ServerJSON: in.ServerJSON,
			PublishedBy: in.PublishedBy, Provenance: in.Provenance, seq: st.seq,
		}
		st.vers[key] = v
		out = domain.VersionUpserted{Upserted: domain.Upserted{ID: v.ID, Created: true}}
		return nil
	})
	return out, err
}

func (r *memRepo) UpsertArtifact(_ context.Context, in domain.ArtifactUpsert) (out domain.ArtifactUpserted, err error) {
	err = r.with("UpsertArtifact", func(st *memState) error {
		key := in.VersionID + "/" + in.Platform.OS + "/" + in.Platform.Arch
		if a, ok := st.arts[key]; ok {
			out = domain.ArtifactUpserted{Upserted: domain.Upserted{ID: a.ID}, OldStorageKey: a.StorageKey}
			if a.StorageKey == in.StorageKey {
				out.OldStorageKey = ""
			}
			a.Filename, a.Digest, a.Size, a.StorageKey, a.MimeType = in.Filename, in.Digest, in.Size, in.StorageKey, in.MimeType
			return nil
		}
		id := st.nextID("art")
		a := &artRow{Artifact: domain.Artifact{
			ID: id, VersionID: in.VersionID, Platform: in.Platform, Filename: in.Filename,
			Digest: in.Digest, Size: in.Size, StorageKey: in.StorageKey, MimeType: in.MimeType,
		}, seq: st.seq}
		st.arts[key] = a
		out = domain.ArtifactUpserted{Upserted: domain.Upserted{ID: a.ID, Created: true}}
		return nil
	})
	return out, err
}

func (r *memRepo) CountArtifacts(_ context.Context, versionID string) (n int, err error) {
	err = r.with("CountArtifacts", func(st *memState) error {
		for _, a := range st.arts {
			if a.VersionID == versionID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memRepo) ResolveVersion(_ context.Context, kind artifact.Kind, name, version string) (out domain.VersionRef, err error) {
	err = r.with("ResolveVersion", func(st *memState) error {
		p, ok := st.pkgs[name]
		if !ok || p.Kind != kind {
			return perr.NotFoundf("%s not found", name)
		}
		if version == "latest" {
			if p.Latest == nil {
				return perr.NotFoundf("%s has no published versions", name)
			}
			version = p.Latest.Version
		}
		v, ok := st.vers[p.ID+"@"+version]
		if !ok {
			return perr.NotFoundf("%s %s not found", name, version)
		}
		out = domain.VersionRef{PackageID: p.ID, VersionID: v.ID, Name: p.Name, Version: v.Version}
		return nil
	})
	return out, err
}

func (r *memRepo) ListArtifacts(_ context.Context, versionID string) (out []domain.Artifact, err error) {
	err = r.with("ListArtifacts", func(st *memState) error {
		var rows []*artRow
		for _, a := range st.arts {
			if a.VersionID == versionID {
				rows = append(rows, a)
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
		for _, a := range rows {
			out = append(out, a.Artifact)
		}
		return nil
	})
	return out, err
}

func (r *memRepo) IncrementDownloads(_ context.Context, artifactID, versionID, packageID string) error {
	return r.with("IncrementDownloads", func(st *memState) error {
		for _, a := range st.arts {
			if a.ID == artifactID {
				a.Downloads++
			}
		}
		for _, v := range st.vers {
			if v.ID == versionID {
				v.Downloads++
			}
		}
		if p := st.pkgByID(packageID); p != nil {
			p.Downloads++
		}
		return nil
	})
}

// object store

type memBlobs struct {
	mu     sync.Mutex
	objs   map[string][]byte
	puts   int
	putErr error
}

func newMemBlobs() *memBlobs { return &memBlobs{objs: map[string][]byte{}} }

func (b *memBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return b.putErr
	}
	b.objs[key] = data
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objs, key)
	return nil
}

func (b *memBlobs) URL(_ context.Context, key, _ string, ttl time.Duration) (string, time.Time, error) {
	return "https://blobs.test/" + key, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(ttl), nil
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objs))
	for k := range b.objs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// release host

type fakeReleases struct {
	mu       sync.Mutex
	files    map[string][]byte
	sizes    map[string]int64 // overrides the advertised asset size
	relErr   error
	readme   string
	releases int
	opens    int
}

func newFakeReleases() *fakeReleases {
	return &fakeReleases{files: map[string][]byte{}, sizes: map[string]int64{}}
}

func (f *fakeReleases) add(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
}

func (f *fakeReleases) Release(_ context.Context, repo, tag string) (github.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.relErr != nil {
		return github.Release{}, f.relErr
	}
	rel := github.Release{TagName: tag, HTMLURL: "https://github.com/" + repo + "/releases/tag/" + tag}
	names := make([]string, 0, len(f.files))
	for n := range f.files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		size := int64(len(f.files[n]))
		if s, ok := f.sizes[n]; ok {
			size = s
		}
		rel.Assets = append(rel.Assets, github.Asset{
			Name:        n,
			Size:        size,
			URL:         "https://api.github.test/assets/" + n,
			DownloadURL: "https://github.com/" + repo + "/releases/download/" + tag + "/" + n,
		})
	}
	return rel, nil
}

func (f *fakeReleases) OpenAsset(_ context.Context, a github.Asset) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	data, ok := f.files[a.Name]
	if !ok {
		return nil, 0, perr.UpstreamNotFoundf("asset %s not found", a.Name)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (f *fakeReleases) Companion(_ context.Context, rel github.Release, name string) ([]byte, bool) {
	if _, ok := rel.Asset(name); !ok {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[name]
	return data, ok
}

func (f *fakeReleases) Readme(context.Context, string, string) (string, error) {
	return f.readme, nil
}

// identity

type fakeVerifier struct {
	claims provenance.Claims
	err    error
}

func (v fakeVerifier) Verify(_ context.Context, raw string) (provenance.Claims, error) {
	if v.err != nil {
		return provenance.Claims{}, v.err
	}
	if raw == "" {
		return provenance.Claims{}, perr.Unauthorizedf("missing token")
	}
	return v.claims, nil
}

func ownerClaims(owner string) provenance.Claims {
	return provenance.Claims{
		Issuer:          "https://token.actions.githubusercontent.com",
		Subject:         "repo:" + owner + "/tools:ref:refs/tags/v1.0.0",
		Repository:      owner + "/tools",
		RepositoryOwner: owner,
		SHA:             "ABCDEF0123",
		WorkflowRef:     owner + "/tools/.github/workflows/release.yml@refs/tags/v1.0.0",
		RunID:           "42",
	}
}

// scans

type fakeScans struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeScans) Trigger(_ context.Context, versionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, versionID+" "+key)
	return nil
}

func (s *fakeScans) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// events

type fakeEvents struct {
	mu  sync.Mutex
	evs []domain.DownloadEvent
}

func (e *fakeEvents) DownloadEvent(_ context.Context, ev domain.DownloadEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
	return nil
}

func sha256Hex(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}
