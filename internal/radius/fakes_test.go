package radius

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"

	"github.com/jazanet/backend/internal/models"
)

// fakeStore is an in-memory Store for handler tests. The zero value
// answers ErrNotFound for every lookup; tests seed it through addNas
// and addSubscriber. Everything is mutex-guarded because handlers
// touch the store from spawned goroutines.
type fakeStore struct {
	mu sync.Mutex

	nasByAddr map[string]*models.Nas
	nasByID   map[uint]*models.Nas
	subs      map[string]*models.Subscriber

	starts   []SessionStart
	interims []SessionInterim
	stops    []SessionStop
	sweeps   []sweepCall
	seen     []seenCall
	nasSeen  []uint

	active         []models.Session
	activeCount    int64
	sweepClosed    int64
	interimMatched bool

	subErr     error
	upsertErr  error
	interimErr error
	closeErr   error
	sweepErr   error
	activeErr  error
}

type sweepCall struct {
	tenantID uint
	nasID    uint
	cause    string
}

type seenCall struct {
	subscriberID uint
	ip           string
	mac          string
	online       bool
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		nasByAddr:      make(map[string]*models.Nas),
		nasByID:        make(map[uint]*models.Nas),
		subs:           make(map[string]*models.Subscriber),
		interimMatched: true,
	}
}

func subKey(tenantID uint, username string) string {
	return fmt.Sprintf("%d/%s", tenantID, username)
}

func (f *fakeStore) addNas(nas *models.Nas) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nasByAddr[nas.IPAddress] = nas
	if nas.VpnIPAddress != "" {
		f.nasByAddr[nas.VpnIPAddress] = nas
	}
	f.nasByID[nas.ID] = nas
}

func (f *fakeStore) addSubscriber(sub *models.Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[subKey(sub.TenantID, sub.Username)] = sub
}

func (f *fakeStore) FindNasByAddress(_ context.Context, addr string) (*models.Nas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nas, ok := f.nasByAddr[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return nas, nil
}

func (f *fakeStore) FindNasByID(_ context.Context, tenantID, nasID uint) (*models.Nas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nas, ok := f.nasByID[nasID]
	if !ok || nas.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return nas, nil
}

func (f *fakeStore) FindSubscriberByUsername(_ context.Context, tenantID uint, username string) (*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	sub, ok := f.subs[subKey(tenantID, username)]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (f *fakeStore) TouchSubscriberSeen(_ context.Context, subscriberID uint, ip, mac string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, seenCall{subscriberID: subscriberID, ip: ip, mac: mac, online: online})
	return nil
}

func (f *fakeStore) UpsertSessionStart(_ context.Context, start SessionStart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.starts = append(f.starts, start)
	return nil
}

func (f *fakeStore) UpdateSessionInterim(_ context.Context, interim SessionInterim) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.interimErr != nil {
		return false, f.interimErr
	}
	f.interims = append(f.interims, interim)
	return f.interimMatched, nil
}

func (f *fakeStore) CloseSession(_ context.Context, stop SessionStop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.stops = append(f.stops, stop)
	return nil
}

func (f *fakeStore) CloseAllSessionsForNas(_ context.Context, tenantID, nasID uint, cause string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sweepErr != nil {
		return 0, f.sweepErr
	}
	f.sweeps = append(f.sweeps, sweepCall{tenantID: tenantID, nasID: nasID, cause: cause})
	return f.sweepClosed, nil
}

func (f *fakeStore) ActiveSessionsForUsername(_ context.Context, tenantID uint, username string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	var out []models.Session
	for _, s := range f.active {
		if s.TenantID == tenantID && s.Username == username && s.StopTime == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveSessionCount(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeCount, nil
}

func (f *fakeStore) TouchNas(_ context.Context, nasID uint, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nasSeen = append(f.nasSeen, nasID)
	return nil
}

func (f *fakeStore) sessionStarts() []SessionStart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionStart(nil), f.starts...)
}

func (f *fakeStore) sessionInterims() []SessionInterim {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionInterim(nil), f.interims...)
}

func (f *fakeStore) sessionStops() []SessionStop {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionStop(nil), f.stops...)
}

func (f *fakeStore) sweepCalls() []sweepCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sweepCall(nil), f.sweeps...)
}

func (f *fakeStore) seenCalls() []seenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]seenCall(nil), f.seen...)
}

func (f *fakeStore) nasTouches() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.nasSeen...)
}

// newTestServer wires a server around a fake store with no Redis, no
// metrics and a discarded log. Handler tests call the handle methods
// directly; only the end-to-end tests Start it.
func newTestServer(st Store) *Server {
	return NewServer(ServerConfig{}, st, nil, NewEventLog(), nil, zerolog.Nop())
}

func testNas() *models.Nas {
	return &models.Nas{
		ID:        1,
		TenantID:  1,
		Name:      "gw-1",
		IPAddress: "10.0.0.1",
		Secret:    "s3cr3t",
		CoAPort:   3799,
	}
}

func testPackage() *models.Package {
	return &models.Package{
		ID:           3,
		TenantID:     1,
		Name:         "home-5",
		DownloadMbps: 5,
		UploadMbps:   10,
	}
}

func testSubscriber(pkg *models.Package) *models.Subscriber {
	sub := &models.Subscriber{
		ID:             10,
		TenantID:       1,
		Username:       "alice",
		Password:       "pw",
		ConnectionType: models.ConnectionPPPoE,
		Status:         models.SubscriberStatusActive,
		ExpiresAt:      time.Now().Add(30 * 24 * time.Hour),
	}
	if pkg != nil {
		sub.PackageID = &pkg.ID
		sub.Package = pkg
	}
	return sub
}

// parseWire round-trips a request through its wire form, the way the
// listener sees it: the raw datagram plus a parse with the NAS secret.
func parseWire(t *testing.T, req *radius.Packet, secret []byte) (*radius.Packet, []byte) {
	t.Helper()
	raw, err := req.Encode()
	require.NoError(t, err)
	p, err := radius.Parse(raw, secret)
	require.NoError(t, err)
	return p, raw
}
