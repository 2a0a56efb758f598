package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"officeclock/internal/capture"
	"officeclock/internal/facematch"
	"officeclock/internal/logrelay"
	"officeclock/internal/netident"
	"officeclock/internal/records"
)

type resolverFunc func(ctx context.Context) (string, error)

func (f resolverFunc) ResolvePublicAddress(ctx context.Context) (string, error) { return f(ctx) }

type fakeVerifier struct {
	result facematch.Result
	calls  int
	ref    string
}

func (f *fakeVerifier) Verify(_ context.Context, ref, _ string) facematch.Result {
	f.calls++
	f.ref = ref
	return f.result
}

type fakeDispatcher struct {
	err    error
	events []logrelay.AttendanceEvent
}

func (f *fakeDispatcher) DispatchAttendance(_ context.Context, e logrelay.AttendanceEvent) error {
	f.events = append(f.events, e)
	return f.err
}

type fakeCapturer struct {
	still capture.Still
	err   error
	calls int
}

func (f *fakeCapturer) Capture(context.Context) (capture.Still, error) {
	f.calls++
	return f.still, f.err
}

type fixture struct {
	store      *records.Memory
	verifier   *fakeVerifier
	dispatcher *fakeDispatcher
	svc        *Service
}

func newFixture(t *testing.T, avatar string) *fixture {
	t.Helper()
	store := records.NewMemory()
	ctx := context.Background()
	if err := store.SaveEmployee(ctx, records.Employee{ID: "E1", Name: "Alice", Position: "Engineer", Avatar: avatar, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		store:      store,
		verifier:   &fakeVerifier{result: facematch.Result{IsMatch: true, Confidence: 0.92, Reasoning: "same person"}},
		dispatcher: &fakeDispatcher{},
	}
	f.svc = NewService(store, f.verifier, f.dispatcher)
	f.svc.now = func() time.Time { return time.Date(2025, 6, 2, 1, 30, 0, 0, time.UTC) }
	f.svc.newID = func() string { return "rec-1" }
	return f
}

func (f *fixture) history(t *testing.T) []records.AttendanceRecord {
	t.Helper()
	list, err := f.store.ListAttendance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if e.Kind != kind {
		t.Fatalf("kind = %s, want %s (%v)", e.Kind, kind, err)
	}
	return e
}

func TestNetworkOnlyCheckIn(t *testing.T) {
	f := newFixture(t, "")
	out, err := f.svc.Workflow(Settings{}).Run(context.Background(), Attempt{
		EmployeeID: "E1",
		Type:       records.CheckIn,
		Network:    netident.Static("9.9.9.9"),
	})
	if err != nil {
		t.Fatal(err)
	}

	hist := f.history(t)
	if len(hist) != 1 {
		t.Fatalf("history = %d records", len(hist))
	}
	rec := hist[0]
	if rec.Confidence != 1.0 || rec.Status != records.StatusSuccess || rec.Snapshot != "" || rec.Type != records.CheckIn {
		t.Errorf("record = %+v", rec)
	}
	if len(f.dispatcher.events) != 1 || !out.Dispatched {
		t.Fatalf("dispatch attempted %d times", len(f.dispatcher.events))
	}
	ev := f.dispatcher.events[0]
	if ev.Status != "CHECK_IN" || ev.Note != "Wi-Fi/IP only - IP: 9.9.9.9" || ev.IP != "9.9.9.9" {
		t.Errorf("event = %+v", ev)
	}
	want := []State{StateIdle, StateCheckingNetwork, StateSubmitting, StateDone}
	if strings.Join(statesOf(out.Trace), ",") != strings.Join(statesOf(want), ",") {
		t.Errorf("trace = %v", out.Trace)
	}
}

func TestUnconfiguredNetworkToleratesLookupFailure(t *testing.T) {
	f := newFixture(t, "")
	failing := resolverFunc(func(context.Context) (string, error) { return "", netident.ErrUnresolvable })
	out, err := f.svc.Workflow(Settings{}).Run(context.Background(), Attempt{EmployeeID: "E1", Type: records.CheckOut, Network: failing})
	if err != nil {
		t.Fatal(err)
	}
	if out.IP != "" || out.Note != "Wi-Fi/IP only" {
		t.Errorf("out = %+v", out)
	}
}

func TestDisallowedNetwork(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.store.SaveWifiConfig(ctx, records.WifiConfig{Name: "Office", IP: "1.2.3.4"})

	_, err := f.svc.Workflow(Settings{}).Run(ctx, Attempt{EmployeeID: "E1", Type: records.CheckIn, Network: netident.Static("9.9.9.9")})
	e := requireKind(t, err, KindNetworkIdentity)
	if !strings.Contains(e.Msg, "Office") || e.State != StateCheckingNetwork {
		t.Errorf("err = %+v", e)
	}
	if len(f.history(t)) != 0 || len(f.dispatcher.events) != 0 {
		t.Error("no record may be written")
	}
}

func TestUnresolvableNetworkWhenConfigured(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.store.SaveWifiConfig(ctx, records.WifiConfig{Name: "Office", IP: "1.2.3.4"})

	_, err := f.svc.Workflow(Settings{}).Run(ctx, Attempt{EmployeeID: "E1", Type: records.CheckIn, Network: netident.Static("")})
	requireKind(t, err, KindNetworkIdentity)
	if !errors.Is(err, netident.ErrUnresolvable) {
		t.Errorf("err = %v", err)
	}
}

func TestAllowedNetwork(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.store.SaveWifiConfig(ctx, records.WifiConfig{Name: "Office", IP: "1.2.3.4"})
	if _, err := f.svc.Workflow(Settings{}).Run(ctx, Attempt{EmployeeID: "E1", Type: records.CheckIn, Network: netident.Static("1.2.3.4")}); err != nil {
		t.Fatal(err)
	}
}

func TestFaceRequiresEnrollment(t *testing.T) {
	f := newFixture(t, "")
	cam := &fakeCapturer{still: capture.Still{Data: []byte{1}, MIMEType: "image/jpeg"}}
	_, err := f.svc.Workflow(Settings{FaceAttendance: true}).Run(context.Background(), Attempt{
		EmployeeID: "E1", Type: records.CheckIn, Network: netident.Static("1.1.1.1"), Capture: cam,
	})
	e := requireKind(t, err, KindEnrollmentRequired)
	if e.State != StateVerifying {
		t.Errorf("state = %s", e.State)
	}
	if f.verifier.calls != 0 || len(f.history(t)) != 0 {
		t.Error("verifier called or record written")
	}
}

func TestFaceMismatch(t *testing.T) {
	f := newFixture(t, "data:image/jpeg;base64,AAAA")
	f.verifier.result = facematch.Result{IsMatch: false, Confidence: 0.1, Reasoning: "different jawline"}
	cam := &fakeCapturer{still: capture.Still{Data: []byte{1}, MIMEType: "image/jpeg"}}

	_, err := f.svc.Workflow(Settings{FaceAttendance: true}).Run(context.Background(), Attempt{EmployeeID: "E1", Type: records.CheckIn, Capture: cam})
	e := requireKind(t, err, KindVerificationMismatch)
	if !strings.Contains(e.Msg, "different jawline") {
		t.Errorf("msg = %q", e.Msg)
	}
	if len(f.history(t)) != 0 || len(f.dispatcher.events) != 0 {
		t.Error("no record may be written")
	}
}

func TestFaceMatch(t *testing.T) {
	f := newFixture(t, "data:image/jpeg;base64,AAAA")
	cam := &fakeCapturer{still: capture.Still{Data: []byte{9, 9}, MIMEType: "image/jpeg"}}

	out, err := f.svc.Workflow(Settings{FaceAttendance: true}).Run(context.Background(), Attempt{
		EmployeeID: "E1", Type: records.CheckOut, Network: netident.Static("5.5.5.5"), Capture: cam,
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.verifier.ref != "data:image/jpeg;base64,AAAA" {
		t.Errorf("verifier reference = %q", f.verifier.ref)
	}
	rec := f.history(t)[0]
	if rec.Confidence != 0.92 || rec.Snapshot != cam.still.DataURL() || rec.Type != records.CheckOut {
		t.Errorf("record = %+v", rec)
	}
	if out.Note != "Face Auth (Conf: 0.92) - IP: 5.5.5.5" {
		t.Errorf("note = %q", out.Note)
	}
	want := []State{StateIdle, StateCheckingNetwork, StateCapturingFace, StateVerifying, StateSubmitting, StateDone}
	if strings.Join(statesOf(out.Trace), ",") != strings.Join(statesOf(want), ",") {
		t.Errorf("trace = %v", out.Trace)
	}
}

func TestCaptureOutcomes(t *testing.T) {
	tests := []struct {
		name string
		cam  Capturer
		kind Kind
	}{
		{"no capturer", nil, KindCaptureRequired},
		{"no frame yet", &fakeCapturer{err: capture.ErrNoFrame}, KindCaptureRequired},
		{"permission denied", &fakeCapturer{err: capture.ErrPermissionDenied}, KindPermission},
		{"unreadable image", &fakeCapturer{err: capture.ErrInvalidDataURL}, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "data:image/jpeg;base64,AAAA")
			_, err := f.svc.Workflow(Settings{FaceAttendance: true}).Run(context.Background(), Attempt{EmployeeID: "E1", Type: records.CheckIn, Capture: tt.cam})
			e := requireKind(t, err, tt.kind)
			if e.State != StateCapturingFace {
				t.Errorf("state = %s", e.State)
			}
			if len(f.history(t)) != 0 {
				t.Error("no record may be written")
			}
		})
	}
}

func TestFlagOffIgnoresCapture(t *testing.T) {
	f := newFixture(t, "data:image/jpeg;base64,AAAA")
	cam := &fakeCapturer{err: capture.ErrPermissionDenied}
	if _, err := f.svc.Workflow(Settings{}).Run(context.Background(), Attempt{EmployeeID: "E1", Type: records.CheckIn, Capture: cam}); err != nil {
		t.Fatal(err)
	}
	if cam.calls != 0 || f.verifier.calls != 0 {
		t.Error("camera or verifier used with face attendance off")
	}
}

func TestRemoteFailureDoesNotFailAttempt(t *testing.T) {
	f := newFixture(t, "")
	f.dispatcher.err = errors.New("sheet down")
	out, err := f.svc.Workflow(Settings{}).Run(context.Background(), Attempt{EmployeeID: "E1", Type: records.CheckIn})
	if err != nil {
		t.Fatal(err)
	}
	if out.Dispatched || out.DispatchError == "" {
		t.Errorf("out = %+v", out)
	}
	if len(f.history(t)) != 1 {
		t.Error("local record must be kept")
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, "")
	tests := []struct {
		name string
		a    Attempt
	}{
		{"no employee", Attempt{Type: records.CheckIn}},
		{"bad type", Attempt{EmployeeID: "E1", Type: "LUNCH"}},
		{"unknown employee", Attempt{EmployeeID: "E404", Type: records.CheckIn}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.svc.Workflow(Settings{}).Run(context.Background(), tt.a)
			e := requireKind(t, err, KindValidation)
			if e.State != StateIdle {
				t.Errorf("state = %s", e.State)
			}
			for _, s := range out.Trace {
				if s == StateCheckingNetwork {
					t.Error("validation failure reached CHECKING_NETWORK")
				}
			}
		})
	}
}

func TestSettingsFromStore(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	s, _ := f.svc.Settings(ctx)
	if s.FaceAttendance {
		t.Fatal("flag must default to off")
	}
	f.store.SetFaceAttendance(ctx, true)
	s, _ = f.svc.Settings(ctx)
	if !s.FaceAttendance {
		t.Fatal("flag not read back")
	}
}

type fakeArchiver struct{ url string }

func (a fakeArchiver) Archive(context.Context, string, string) (string, error) { return a.url, nil }

func TestArchivedSnapshotInNote(t *testing.T) {
	f := newFixture(t, "data:image/jpeg;base64,AAAA")
	f.svc.WithArchiver(fakeArchiver{url: "https://cdn.example/s.jpg"})
	cam := &fakeCapturer{still: capture.Still{Data: []byte{1}}}
	out, err := f.svc.Workflow(Settings{FaceAttendance: true}).Run(context.Background(), Attempt{EmployeeID: "E1", Type: records.CheckIn, Capture: cam})
	if err != nil {
		t.Fatal(err)
	}
	if out.Note != "Face Auth (Conf: 0.92) - Snapshot: https://cdn.example/s.jpg" {
		t.Errorf("note = %q", out.Note)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := map[Kind]int{
		KindValidation:           400,
		KindNetworkIdentity:      403,
		KindPermission:           403,
		KindCaptureRequired:      428,
		KindEnrollmentRequired:   422,
		KindVerificationMismatch: 401,
		KindStorage:              500,
	}
	for kind, want := range tests {
		if got := (&Error{Kind: kind}).HTTPStatus(); got != want {
			t.Errorf("%s: %d, want %d", kind, got, want)
		}
	}
}

func statesOf(s []State) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}
