// Package yolo holds the pre- and post-processing shared by the YOLOv8
// backends: letterboxing the source image into the model input and turning
// the raw output tensor into pixel-space detections.
package yolo

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // register decoders for image.Decode
	_ "image/png"
	"math"
	"os"
	"slices"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/tiff"

	"github.com/hotspot-detector/geodetect/internal/detector"
)

// PadValue is the grey used to fill letterbox borders.
const PadValue = 114

// maxCandidates caps boxes fed into NMS.
const maxCandidates = 30000

// Layout is the channel order of the model input.
type Layout int

const (
	NCHW Layout = iota // ONNX exports
	NHWC               // TFLite exports
)

// Options controls post-processing.
type Options struct {
	Confidence    float64
	IoU           float64
	MaxDetections int
	// NumClasses, when known, picks the attribute axis of the output exactly.
	NumClasses int
	// NormalizedBoxes is set when the model emits boxes in 0..1 of the input size.
	NormalizedBoxes bool
}

// Letterbox records how the source image was fitted into the model input.
type Letterbox struct {
	Gain       float64
	PadX, PadY int
	SrcW, SrcH int
	Size       int
}

// LoadImage decodes the image at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}
	return img, nil
}

// Fit scales img to fit a size x size square, preserving aspect ratio, and
// centres it on a PadValue background.
func Fit(img image.Image, size int) (*image.RGBA, Letterbox) {
	b := img.Bounds()
	lb := Letterbox{SrcW: b.Dx(), SrcH: b.Dy(), Size: size}
	lb.Gain = math.Min(float64(size)/float64(lb.SrcH), float64(size)/float64(lb.SrcW))

	newW := max(1, int(math.Round(float64(lb.SrcW)*lb.Gain)))
	newH := max(1, int(math.Round(float64(lb.SrcH)*lb.Gain)))
	lb.PadX = int(math.Round(float64(size-newW)/2 - 0.1))
	lb.PadY = int(math.Round(float64(size-newH)/2 - 0.1))

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{PadValue, PadValue, PadValue, 255}}, image.Point{}, draw.Src)

	scaled := img
	if newW != lb.SrcW || newH != lb.SrcH {
		scaled = resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	}
	dst := image.Rect(lb.PadX, lb.PadY, lb.PadX+newW, lb.PadY+newH)
	draw.Draw(canvas, dst, scaled, scaled.Bounds().Min, draw.Src)

	return canvas, lb
}

// Tensor writes the letterboxed image into dst as RGB floats in 0..1.
// dst must hold 3*size*size values.
func Tensor(canvas *image.RGBA, layout Layout, dst []float32) error {
	size := canvas.Bounds().Dx()
	plane := size * size
	if len(dst) < 3*plane {
		return fmt.Errorf("input tensor holds %d values, need %d", len(dst), 3*plane)
	}

	const scale = 1.0 / 255.0
	for y := range size {
		row := canvas.Pix[y*canvas.Stride:]
		for x := range size {
			r := float32(row[x*4]) * scale
			g := float32(row[x*4+1]) * scale
			b := float32(row[x*4+2]) * scale
			i := y*size + x
			switch layout {
			case NCHW:
				dst[i], dst[plane+i], dst[2*plane+i] = r, g, b
			case NHWC:
				dst[i*3], dst[i*3+1], dst[i*3+2] = r, g, b
			}
		}
	}
	return nil
}

// Prepare loads path and fills dst, returning the letterbox used.
func Prepare(path string, size int, layout Layout, dst []float32) (Letterbox, error) {
	img, err := LoadImage(path)
	if err != nil {
		return Letterbox{}, err
	}
	canvas, lb := Fit(img, size)
	if err := Tensor(canvas, layout, dst); err != nil {
		return Letterbox{}, err
	}
	return lb, nil
}

type candidate struct {
	x1, y1, x2, y2 float64
	score          float64
	class          int
}

// Decode converts a YOLOv8 output of shape [1, 4+nc, N] or [1, N, 4+nc]
// into detections in source-image pixels, best score first.
func Decode(out []float32, shape []int64, lb Letterbox, opts Options) ([]detector.RawDetection, error) {
	if len(shape) == 3 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	rows, cols := int(shape[0]), int(shape[1])
	if rows*cols != len(out) {
		return nil, fmt.Errorf("output shape %v does not match %d values", shape, len(out))
	}

	// channels-first when the attribute axis is the short one
	channelsFirst := rows < cols
	if opts.NumClasses > 0 {
		switch 4 + opts.NumClasses {
		case rows:
			channelsFirst = true
		case cols:
			channelsFirst = false
		default:
			return nil, fmt.Errorf("output shape %v does not carry %d classes", shape, opts.NumClasses)
		}
	}
	attrs, boxes := rows, cols
	if !channelsFirst {
		attrs, boxes = cols, rows
	}
	if attrs < 5 {
		return nil, fmt.Errorf("output shape %v has no class scores", shape)
	}
	at := func(attr, box int) float64 {
		if channelsFirst {
			return float64(out[attr*boxes+box])
		}
		return float64(out[box*attrs+attr])
	}

	boxScale := 1.0
	if opts.NormalizedBoxes {
		boxScale = float64(lb.Size)
	}

	cands := make([]candidate, 0, 64)
	for i := range boxes {
		best, bestClass := -1.0, -1
		for c := 4; c < attrs; c++ {
			if s := at(c, i); s > best {
				best, bestClass = s, c-4
			}
		}
		if best <= opts.Confidence {
			continue
		}
		cx, cy := at(0, i)*boxScale, at(1, i)*boxScale
		w, h := at(2, i)*boxScale, at(3, i)*boxScale
		cands = append(cands, candidate{
			x1: cx - w/2, y1: cy - h/2, x2: cx + w/2, y2: cy + h/2,
			score: best, class: bestClass,
		})
	}

	kept := nms(cands, opts.IoU, opts.MaxDetections)

	dets := make([]detector.RawDetection, 0, len(kept))
	for _, c := range kept {
		dets = append(dets, detector.RawDetection{
			Box:        lb.unpad(c),
			ClassIndex: c.class,
			Confidence: c.score,
		})
	}
	return dets, nil
}

// nms applies class-aware non-maximum suppression and returns at most
// limit candidates in descending score order. limit <= 0 means no limit.
func nms(cands []candidate, iouThreshold float64, limit int) []candidate {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	if len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}

	suppressed := make([]bool, len(cands))
	kept := make([]candidate, 0, min(len(cands), 64))
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		if limit > 0 && len(kept) == limit {
			break
		}
		for j := i + 1; j < len(cands); j++ {
			if !suppressed[j] && cands[j].class == cands[i].class && iou(cands[i], cands[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b candidate) float64 {
	ix := math.Max(0, math.Min(a.x2, b.x2)-math.Max(a.x1, b.x1))
	iy := math.Max(0, math.Min(a.y2, b.y2)-math.Max(a.y1, b.y1))
	inter := ix * iy
	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// unpad maps a box from model input space back to the source image,
// clipped to its bounds and truncated to whole pixels.
func (lb Letterbox) unpad(c candidate) [4]int {
	gain := lb.Gain
	if gain == 0 {
		gain = 1
	}
	fx := func(v float64) int {
		return int(clamp((v-float64(lb.PadX))/gain, 0, float64(lb.SrcW)))
	}
	fy := func(v float64) int {
		return int(clamp((v-float64(lb.PadY))/gain, 0, float64(lb.SrcH)))
	}
	return [4]int{fx(c.x1), fy(c.y1), fx(c.x2), fy(c.y2)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
