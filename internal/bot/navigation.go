package bot

import (
	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/scene"
)

// Navigation sub-steps. Each tick advances one step.
const (
	navOpenMap = iota
	navPickArea
	navCloseMap
	navTravel
)

// navigation is the sub-step counter of the Navigating state.
type navigation struct {
	step     int
	travel   int // ticks spent travelling toward the picked area
	quadrant int // rotation used when the map shows no fuel
}

func (n *navigation) reset() {
	n.step = navOpenMap
	n.travel = 0
}

// onMap reports whether the map overlay is expected to be on screen.
func (n *navigation) onMap(state State) bool {
	return state == StateNavigating && (n.step == navPickArea || n.step == navCloseMap)
}

// navigate emits the next route action: open the map, click the densest fuel
// area, close the map, then travel until a node is in reach or the trip times out.
func (p *Policy) navigate(obs Observation) *Action {
	switch p.nav.step {
	case navOpenMap:
		p.nav.step = navPickArea
		p.overlayOpen = true
		return &Action{Kind: ActionOverlay, Purpose: PurposeRoute, Overlay: p.cfg.MapOverlay}

	case navPickArea:
		p.nav.step = navCloseMap
		target := p.densestArea(obs)
		log.Info().Int("x", target.X).Int("y", target.Y).Int("markers", len(obs.Analysis.Nodes)).
			Msg("Navigation target picked")
		return &Action{Kind: ActionClick, Purpose: PurposeRoute, Point: target}

	case navCloseMap:
		p.nav.step = navTravel
		p.nav.travel = 0
		return p.closeOverlay()

	default:
		p.nav.travel++
		if p.nav.travel >= p.cfg.NavigationTravelTicks {
			log.Debug().Int("ticks", p.nav.travel).Msg("No fuel reached, planning a new route")
			p.nav.reset()
		}
		return nil
	}
}

// densestArea splits the map into a grid and returns the value-weighted centre
// of the cell holding the most fuel. With no markers visible it cycles through
// the four quadrant centres.
func (p *Policy) densestArea(obs Observation) scene.Point {
	bounds := obs.Bounds
	grid := max(p.cfg.MapGrid, 1)
	nodes := obs.Analysis.Nodes

	if len(nodes) == 0 || bounds.Empty() {
		q := p.nav.quadrant % 4
		p.nav.quadrant++
		return scene.Pt(bounds.X+bounds.W/4+(q%2)*bounds.W/2, bounds.Y+bounds.H/4+(q/2)*bounds.H/2)
	}

	cellW := max(bounds.W/grid, 1)
	cellH := max(bounds.H/grid, 1)
	type cell struct {
		total      float64
		sumX, sumY float64
	}
	cells := map[[2]int]*cell{}
	var best *cell
	for _, n := range nodes {
		key := [2]int{min((n.Position.X-bounds.X)/cellW, grid-1), min((n.Position.Y-bounds.Y)/cellH, grid-1)}
		c, ok := cells[key]
		if !ok {
			c = &cell{}
			cells[key] = c
		}
		c.total += n.Value
		c.sumX += float64(n.Position.X) * n.Value
		c.sumY += float64(n.Position.Y) * n.Value
		if best == nil || c.total > best.total {
			best = c
		}
	}
	if best.total <= 0 {
		return nodes[0].Position
	}
	return scene.Pt(int(best.sumX/best.total), int(best.sumY/best.total))
}
