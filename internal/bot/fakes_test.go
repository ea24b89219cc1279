package bot

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"tankpit-bot/internal/scene"
)

type fakeSession struct {
	mu       sync.Mutex
	frame    *scene.Frame
	capErr   error
	failNext error
	actions  []Action
}

func (s *fakeSession) Capture(context.Context) (*scene.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.capErr
}

func (s *fakeSession) record(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.actions = append(s.actions, a)
	return nil
}

func (s *fakeSession) SendKey(_ context.Context, key string) error {
	return s.record(Action{Kind: ActionKey, Key: key})
}

func (s *fakeSession) Click(_ context.Context, x, y int) error {
	return s.record(Action{Kind: ActionClick, Point: scene.Pt(x, y)})
}

func (s *fakeSession) OpenOverlay(_ context.Context, name string) error {
	return s.record(Action{Kind: ActionOverlay, Overlay: name})
}

func (s *fakeSession) recorded() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

type fakeProvider struct {
	mu         sync.Mutex
	session    Session
	reconnects int
	released   int
	reconnErr  error
}

func (p *fakeProvider) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *fakeProvider) Reconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnects++
	return p.reconnErr
}

func (p *fakeProvider) Release(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
	return nil
}

func (p *fakeProvider) counts() (reconnects, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reconnects, p.released
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	analysis scene.Analysis
	panics   bool
}

func (a *fakeAnalyzer) set(an scene.Analysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analysis = an
}

func (a *fakeAnalyzer) Analyze(context.Context, *scene.Frame, scene.Point) scene.Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panics {
		panic("detector exploded")
	}
	return a.analysis
}

type fakeSlots map[scene.Slot]scene.Region

func (f fakeSlots) Region(slot scene.Slot) (scene.Region, bool) {
	r, ok := f[slot]
	return r, ok
}

type reportLog struct {
	mu      sync.Mutex
	reports []Report
}

func (l *reportLog) Publish(r Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
}

func (l *reportLog) last() Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reports[len(l.reports)-1]
}

func (l *reportLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reports)
}

var errInjected = errors.New("injected failure")

func testFrame() *scene.Frame {
	return scene.NewFrame(image.NewRGBA(image.Rect(0, 0, 800, 600)), time.Unix(0, 0))
}

func fuel(p int) scene.Analysis {
	return scene.Analysis{
		Fuel:      scene.FuelReading{Percentage: p, Confidence: scene.Precise, Method: scene.MethodBar},
		Equipment: scene.EquipmentState{},
	}
}

func withNodes(a scene.Analysis, nodes ...scene.FuelNode) scene.Analysis {
	a.Nodes = nodes
	return a
}

var center = scene.Pt(400, 300)

func seen(a scene.Analysis) Observation {
	return Observation{SessionAvailable: true, Analysis: a, Position: center, Bounds: scene.Rgn(0, 0, 800, 600)}
}

func startedPolicy() *Policy {
	p := NewPolicy(DefaultPolicyConfig(), fakeSlots{
		scene.SlotArmor: scene.Rgn(560, 570, 20, 20),
		scene.SlotDuals: scene.Rgn(585, 570, 20, 20),
	})
	p.Start()
	return p
}
