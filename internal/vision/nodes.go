package vision

import (
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"tankpit-bot/internal/scene"
)

// NodeDetector finds fuel nodes by their yellow/gold colour band.
type NodeDetector struct {
	cfg NodeConfig
}

// NewNodeDetector creates a detector.
func NewNodeDetector(cfg NodeConfig) *NodeDetector {
	return &NodeDetector{cfg: cfg}
}

// Detect returns the visible fuel nodes, most valuable first. Ties go to the node
// closest to origin. A nil frame yields no nodes.
func (d *NodeDetector) Detect(frame *scene.Frame, origin scene.Point) []scene.FuelNode {
	if frame == nil {
		return nil
	}
	mat, err := frameMat(frame)
	if err != nil {
		log.Debug().Err(err).Msg("Nodes: frame conversion failed")
		return nil
	}
	defer mat.Close()
	return d.detect(frame, mat, origin)
}

func (d *NodeDetector) detect(frame *scene.Frame, mat gocv.Mat, origin scene.Point) (nodes []scene.FuelNode) {
	if frame == nil || mat.Empty() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Node detection panicked")
			nodes = nil
		}
	}()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(mat, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, d.cfg.Color.lower(), d.cfg.Color.upper(), &mask)

	// Closing merges fragmented blobs before contour extraction
	size := d.cfg.KernelSize
	if size < 1 {
		size = 1
	}
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel)

	contours := gocv.FindContours(closed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	hudTop := frame.Height()
	if d.cfg.IgnoreHUDFrac > 0 {
		hudTop = frame.Bounds().BottomStrip(d.cfg.IgnoreHUDFrac).Y
	}

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < d.cfg.MinArea || area > d.cfg.MaxArea {
			continue
		}
		box := scene.RegionOf(gocv.BoundingRect(contour))
		center := box.Center()
		if center.Y >= hudTop {
			continue
		}
		brightness := meanMaskedBrightness(frame, closed, box)
		nodes = append(nodes, scene.FuelNode{
			Position: center,
			Value:    nodeValue(area, brightness),
			Box:      box,
		})
	}

	scene.RankNodes(nodes, origin)
	log.Trace().Int("count", len(nodes)).Msg("Fuel nodes detected")
	return nodes
}

// nodeValue grows with both blob area and brightness (0-255).
func nodeValue(area, brightness float64) float64 {
	return area * brightness / 255
}

// meanMaskedBrightness averages the HSV value (max channel) of masked pixels inside box.
func meanMaskedBrightness(frame *scene.Frame, mask gocv.Mat, box scene.Region) float64 {
	box = box.Clip(frame.Bounds())
	sum, n := 0, 0
	for y := box.Y; y < box.Y+box.H; y++ {
		for x := box.X; x < box.X+box.W; x++ {
			if mask.GetUCharAt(y, x) == 0 {
				continue
			}
			r, g, b := frame.RGB(x, y)
			sum += int(max(r, g, b))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}
