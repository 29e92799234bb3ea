// Package overlay draws pose and rep feedback onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"

	"github.com/trainr/formtrack/internal/exercise"
	"github.com/trainr/formtrack/internal/framesupplier"
	"github.com/trainr/formtrack/internal/pose"
	"github.com/trainr/formtrack/internal/repcount"
)

var (
	Green   = color.RGBA{0, 255, 0, 255}
	Red     = color.RGBA{255, 0, 0, 255}
	Neutral = color.RGBA{160, 160, 160, 255}
	Bone    = color.RGBA{0, 200, 255, 255}
	Joint   = color.RGBA{255, 220, 0, 255}
	Text    = color.RGBA{255, 255, 255, 255}
	Panel   = color.RGBA{0, 0, 0, 160}
)

// Options tunes the drawing.
type Options struct {
	BorderWidth float64
	LineWidth   float64
	JointRadius float64
}

// DefaultOptions matches a 640x480 feed.
func DefaultOptions() Options {
	return Options{BorderWidth: 10, LineWidth: 3, JointRadius: 4}
}

// Renderer draws overlays. It holds no per-session state and is safe to
// share between sessions.
type Renderer struct {
	opts Options
	face font.Face
}

// New returns a renderer using opts.
func New(opts Options) *Renderer {
	return &Renderer{opts: opts, face: inconsolata.Regular8x16}
}

// Render draws the skeleton, rule angles, counters and status border onto img
// in place. st is a value copy and is never modified.
func (r *Renderer) Render(img *image.RGBA, est pose.Estimate, cfg exercise.Config, st repcount.State) {
	dc := gg.NewContextForRGBA(img)
	dc.SetFontFace(r.face)

	r.drawSkeleton(dc, est)
	r.drawAngles(dc, est, cfg, st)
	r.drawHUD(dc, cfg, st)
	r.drawBorder(dc, StateColor(st))
}

// StateColor is the border colour for st: neutral while the gate angle is
// undefined, otherwise the last rep's grade.
func StateColor(st repcount.State) color.RGBA {
	if st.Phase == exercise.Indeterminate {
		return Neutral
	}
	return BorderColor(st.LastStatus)
}

// BorderColor maps a rep grade to the frame border colour.
func BorderColor(s repcount.Status) color.RGBA {
	switch s {
	case repcount.StatusGood:
		return Green
	case repcount.StatusBad:
		return Red
	default:
		return Neutral
	}
}

func (r *Renderer) drawSkeleton(dc *gg.Context, est pose.Estimate) {
	dc.SetColor(Bone)
	dc.SetLineWidth(r.opts.LineWidth)
	for _, seg := range pose.Skeleton {
		a, okA := est.Get(seg[0])
		b, okB := est.Get(seg[1])
		if !okA || !okB {
			continue
		}
		dc.DrawLine(a.X, a.Y, b.X, b.Y)
		dc.Stroke()
	}

	dc.SetColor(Joint)
	for j := pose.JointID(0); j < pose.NumJoints; j++ {
		kp, ok := est.Get(j)
		if !ok {
			continue
		}
		dc.DrawCircle(kp.X, kp.Y, r.opts.JointRadius)
		dc.Fill()
	}
}

func (r *Renderer) drawAngles(dc *gg.Context, est pose.Estimate, cfg exercise.Config, st repcount.State) {
	for _, rule := range cfg.Rules {
		a, ok := st.LastAngles[rule.Name]
		if !ok || !a.Defined {
			continue
		}
		v, ok := est.Get(rule.Vertex)
		if !ok {
			continue
		}
		c := Red
		switch {
		case rule.Valid.Contains(a.Degrees):
			c = Green
		case rule.Grade != exercise.EveryFrame:
			// Only the rep's extreme is graded.
			c = Neutral
		}
		dc.SetColor(c)
		dc.DrawString(fmt.Sprintf("%.0f", a.Degrees), v.X+8, v.Y-8)
	}
}

func (r *Renderer) drawHUD(dc *gg.Context, cfg exercise.Config, st repcount.State) {
	lines := []string{"Exercise: " + displayName(cfg)}
	if cfg.Counts() {
		lines = append(lines,
			fmt.Sprintf("Reps: %d  Good: %d  Bad: %d", st.RepCount, st.GoodCount, st.BadCount),
			"Phase: "+st.Phase,
		)
		if st.LastStatus == repcount.StatusBad && len(st.Violations) > 0 {
			lines = append(lines, fmt.Sprintf("Check: %v", st.Violations))
		}
	}

	x := r.opts.BorderWidth + 6
	y := r.opts.BorderWidth + 6
	const lineHeight = 18.0

	width := 0.0
	for _, l := range lines {
		if w, _ := dc.MeasureString(l); w > width {
			width = w
		}
	}
	dc.SetColor(Panel)
	dc.DrawRectangle(x-4, y-2, width+8, lineHeight*float64(len(lines))+4)
	dc.Fill()

	dc.SetColor(Text)
	for i, l := range lines {
		dc.DrawString(l, x, y+lineHeight*float64(i+1)-4)
	}
}

func (r *Renderer) drawBorder(dc *gg.Context, c color.Color) {
	w := r.opts.BorderWidth
	if w <= 0 {
		return
	}
	dc.SetColor(c)
	dc.SetLineWidth(w)
	dc.DrawRectangle(w/2, w/2, float64(dc.Width())-w, float64(dc.Height())-w)
	dc.Stroke()
}

// Placeholder returns a dark frame with msg centred, shown while the camera
// delivers nothing usable.
func (r *Renderer) Placeholder(width, height int, msg string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	dc := gg.NewContextForRGBA(img)
	dc.SetColor(color.RGBA{20, 20, 20, 255})
	dc.Clear()
	dc.SetFontFace(r.face)
	dc.SetColor(Text)
	dc.DrawStringAnchored(msg, float64(width)/2, float64(height)/2, 0.5, 0.5)
	r.drawBorder(dc, Neutral)
	return img
}

// ToRGBA copies a packed RGB frame into a new RGBA image the session may draw
// on. The frame itself is shared and is left untouched.
func ToRGBA(f *framesupplier.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	if len(f.Data) < n*3 {
		return img
	}
	for i := 0; i < n; i++ {
		img.Pix[i*4] = f.Data[i*3]
		img.Pix[i*4+1] = f.Data[i*3+1]
		img.Pix[i*4+2] = f.Data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img
}

func displayName(cfg exercise.Config) string {
	if cfg.DisplayName != "" {
		return cfg.DisplayName
	}
	return cfg.ID
}
