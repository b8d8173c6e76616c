// Package tray renders the tray icon, label and tooltip for the current glucose status
package tray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"runtime"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/display"
	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/models"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	osWindows        = "windows"
	statusUrgentLow  = "urgent_low"
	statusUrgentHigh = "urgent_high"
	statusLow        = "low"
	statusHigh       = "high"

	historySize = 24 // two hours of five minute readings
)

// Frame is everything the tray shell needs to show one state
type Frame struct {
	Label   string
	Tooltip string
	Icon    []byte // PNG, or ICO on Windows
}

// Icon keeps the tray state and renders frames from it
type Icon struct {
	mu         sync.Mutex
	settings   *models.Settings
	goos       string
	lastStatus *models.GlucoseStatus
	lastResult *advice.Result
	history    []float64
}

// NewIcon creates a new tray icon renderer
func NewIcon(settings *models.Settings) *Icon {
	return &Icon{
		settings: settings,
		goos:     runtime.GOOS,
		history:  make([]float64, 0, historySize),
	}
}

// UpdateStatus records a new glucose status and renders it
func (t *Icon) UpdateStatus(status *models.GlucoseStatus) Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastStatus = status
	t.history = append(t.history, t.historyValue(status))
	if len(t.history) > historySize {
		t.history = t.history[1:]
	}

	return t.render()
}

// Refresh re-renders a status without adding it to the history, e.g. to age a reading
func (t *Icon) Refresh(status *models.GlucoseStatus) Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastStatus = status
	return t.render()
}

// SetRecommendation attaches the latest advice result to the tooltip.
// It returns false when there is no status to render yet.
func (t *Icon) SetRecommendation(res *advice.Result) (Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastResult = res
	if t.lastStatus == nil {
		return Frame{}, false
	}
	return t.render(), true
}

// Error renders an error state
func (t *Icon) Error(err error) Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Frame{
		Label:   "⚠️",
		Tooltip: fmt.Sprintf("Error: %v", err),
		Icon:    t.generateIcon("ERR", dosing.TrendUnknown),
	}
}

// Loading renders the start-up state
func (t *Icon) Loading() Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Frame{
		Label:   "...",
		Tooltip: "Glucose Calculator - waiting for sensor data...",
		Icon:    t.generateIcon("---", dosing.TrendUnknown),
	}
}

// UpdateSettings swaps the settings and clears the history to avoid mixing units
func (t *Icon) UpdateSettings(settings *models.Settings) (Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.settings = settings
	t.history = make([]float64, 0, historySize)
	if t.lastStatus == nil {
		return Frame{}, false
	}
	t.history = append(t.history, t.historyValue(t.lastStatus))
	return t.render(), true
}

// History returns a copy of the sparkline values
func (t *Icon) History() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.history...)
}

func (t *Icon) unit() string {
	if t.settings == nil {
		return display.UnitMgdl
	}
	return t.settings.Unit
}

func (t *Icon) historyValue(status *models.GlucoseStatus) float64 {
	if t.unit() == display.UnitMmol {
		return status.ValueMmol
	}
	return status.Value
}

func (t *Icon) valueString(status *models.GlucoseStatus) string {
	if t.unit() == display.UnitMmol {
		return fmt.Sprintf("%.1f", status.ValueMmol)
	}
	return fmt.Sprintf("%d", int(math.Round(status.Value)))
}

// render builds the frame for lastStatus; caller holds mu
func (t *Icon) render() Frame {
	status := t.lastStatus
	valueStr := t.valueString(status)
	trend, _ := dosing.ParseTrend(status.Trend)

	var tooltip string
	if t.goos == osWindows {
		tooltip = t.compactTooltip(status, valueStr)
	} else {
		tooltip = t.fullTooltip(status, valueStr)
	}

	return Frame{
		Label:   fmt.Sprintf("%s %s", valueStr, status.Trend),
		Tooltip: tooltip,
		Icon:    t.generateIcon(valueStr, trend),
	}
}

// compactTooltip fits the 128 UTF-16 character limit of Windows tooltips.
// A pending correction replaces the sparkline.
func (t *Icon) compactTooltip(status *models.GlucoseStatus, valueStr string) string {
	staleIndicator := ""
	if status.IsStale {
		staleIndicator = " ⚠"
	}
	footer := t.formatCompactStatus(status.Status) + " " + t.formatCompactDuration(status.StaleMinutes) + staleIndicator
	header := fmt.Sprintf("%s%s %s", valueStr, t.unit(), status.Trend)

	if res := t.correction(); res != nil {
		return fmt.Sprintf("%s\n💊 %s\n%s", header, display.Summary(res), footer)
	}
	if sparkline := t.generateCompactSparkline(); sparkline != "" {
		return fmt.Sprintf("%s\n%s\n%s", header, sparkline, footer)
	}
	return fmt.Sprintf("%s\n%s", header, footer)
}

func (t *Icon) fullTooltip(status *models.GlucoseStatus, valueStr string) string {
	tooltip := fmt.Sprintf("%s %s %s\n%s\nStatus: %s\nUpdated: %s ago",
		valueStr, t.unit(), status.Trend,
		t.generateMultiLineSparkline(),
		t.formatStatus(status.Status),
		t.formatDuration(status.StaleMinutes))
	if status.IsStale {
		tooltip += "\n⚠️ No fresh data (check the feed)"
	}
	if res := t.correction(); res != nil {
		tooltip += "\n💊 " + display.Summary(res)
		if note := res.Recommendation.TrendNote; note != "" {
			tooltip += "\n" + note
		}
	}
	return tooltip
}

// correction returns the last result when it still applies to the shown reading
func (t *Icon) correction() *advice.Result {
	res := t.lastResult
	if res == nil || !res.NeedsCorrection() {
		return nil
	}
	if !res.Reading.Time().Equal(t.lastStatus.Time) {
		return nil
	}
	return res
}

// formatStatus returns a human-readable status string
func (t *Icon) formatStatus(status string) string {
	switch status {
	case statusUrgentLow:
		return "Urgent Low"
	case statusUrgentHigh:
		return "Urgent High"
	case statusLow:
		return "Low"
	case statusHigh:
		return "High"
	case "normal":
		return "In Range"
	default:
		return status
	}
}

// formatDuration formats minutes into a human-readable duration
func (t *Icon) formatDuration(minutes int) string {
	if minutes < 1 {
		return "just now"
	}
	if minutes == 1 {
		return "1 minute"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

// formatCompactStatus returns a compact status string for Windows tooltips
func (t *Icon) formatCompactStatus(status string) string {
	switch status {
	case statusUrgentLow:
		return "🔻URGENT"
	case statusUrgentHigh:
		return "🔺URGENT"
	case statusLow:
		return "↓Low"
	case statusHigh:
		return "↑High"
	case "normal":
		return "✓OK"
	default:
		return status
	}
}

// formatCompactDuration formats minutes into a compact duration for Windows
func (t *Icon) formatCompactDuration(minutes int) string {
	if minutes < 1 {
		return "now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh", minutes/60)
}

func (t *Icon) historyRange() (minVal, maxVal float64) {
	minVal, maxVal = t.history[0], t.history[0]
	for _, v := range t.history {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	return minVal, maxVal
}

// generateCompactSparkline creates a 2-line Braille sparkline for Windows
func (t *Icon) generateCompactSparkline() string {
	if len(t.history) < 2 {
		return ""
	}

	minVal, maxVal := t.historyRange()
	rangeVal := maxVal - minVal
	if rangeVal == 0 {
		rangeVal = 1
	}

	var topLine, bottomLine bytes.Buffer
	for _, val := range t.history {
		// 0-4, each line covers half
		height := (val - minVal) / rangeVal * 4.0

		var topChar, bottomChar rune
		switch {
		case height >= 4:
			topChar, bottomChar = '⣿', '⣿'
		case height >= 3.5:
			topChar, bottomChar = '⣶', '⣿'
		case height >= 3:
			topChar, bottomChar = '⣤', '⣿'
		case height >= 2.5:
			topChar, bottomChar = '⣀', '⣿'
		case height >= 2:
			topChar, bottomChar = '⠀', '⣿'
		case height >= 1.5:
			topChar, bottomChar = '⠀', '⣶'
		case height >= 1:
			topChar, bottomChar = '⠀', '⣤'
		default:
			// an empty column reads as a gap in the data
			topChar, bottomChar = '⠀', '⣀'
		}

		topLine.WriteRune(topChar)
		bottomLine.WriteRune(bottomChar)
	}

	return topLine.String() + "\n" + bottomLine.String()
}

// generateMultiLineSparkline creates a 10-line Braille chart with min/max labels
func (t *Icon) generateMultiLineSparkline() string {
	if len(t.history) < 2 {
		return ""
	}

	const (
		height           = 10
		subBlocksPerLine = 4.0
	)

	minVal, maxVal := t.historyRange()
	buffer := 10.0
	if t.unit() == display.UnitMmol {
		buffer = 0.5
	}
	minVal = math.Max(0, minVal-buffer)
	maxVal += buffer
	rangeVal := maxVal - minVal

	// Empty, 1/4, 1/2, 3/4, Full
	blocks := []rune{'⠀', '⣀', '⣤', '⣶', '⣿'}

	width := len(t.history)
	rows := make([][]rune, height)
	for i := range rows {
		rows[i] = make([]rune, width)
		for j := range rows[i] {
			rows[i][j] = blocks[0]
		}
	}

	for x, val := range t.history {
		totalSubBlocks := (val - minVal) / rangeVal * height * subBlocksPerLine

		for y := 0; y < height; y++ {
			lineIdx := height - 1 - y
			lineStart := float64(y) * subBlocksPerLine
			lineEnd := float64(y+1) * subBlocksPerLine

			if totalSubBlocks >= lineEnd {
				rows[lineIdx][x] = blocks[len(blocks)-1]
			} else if totalSubBlocks > lineStart {
				remainder := int(math.Round(totalSubBlocks - lineStart))
				remainder = max(0, min(remainder, len(blocks)-1))
				rows[lineIdx][x] = blocks[remainder]
			}
		}
	}

	var result bytes.Buffer
	result.WriteString("\n")
	fmt.Fprintf(&result, "Max: %.0f\n", maxVal)
	for _, row := range rows {
		result.WriteString(string(row))
		result.WriteString("\n")
	}
	fmt.Fprintf(&result, "Min: %.0f", minVal)

	return result.String()
}

// generateIcon draws the value and trend arrow on a status coloured tile
func (t *Icon) generateIcon(text string, trend dosing.Trend) []byte {
	const (
		width  = 64
		height = 64
		radius = 16
	)

	dc := gg.NewContext(width, height)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	r, g, b := parseHexColor(t.getStatusColor())
	dc.SetRGB255(int(r), int(g), int(b))
	dc.DrawRoundedRectangle(0, 0, width, height, radius)
	dc.Fill()

	brightness := (int(r)*299 + int(g)*587 + int(b)*114) / 1000
	if brightness > 128 {
		dc.SetColor(color.Black)
	} else {
		dc.SetColor(color.White)
	}

	if err := loadFont(dc, 34); err == nil {
		dc.DrawStringAnchored(text, width/2, height/2-12, 0.5, 0.5)
	}

	drawArrow(dc, width/2, height-16, 24, trend)

	if t.goos == osWindows {
		return imageToICO(dc.Image())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil
	}
	return buf.Bytes()
}

func loadFont(dc *gg.Context, size float64) error {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	return nil
}

// drawArrow draws a vector arrow for the trend; unknown trends draw nothing
func drawArrow(dc *gg.Context, x, y, size float64, trend dosing.Trend) {
	var angle float64
	switch trend {
	case dosing.TrendStrongRise, dosing.TrendRise:
		angle = 0
	case dosing.TrendStable:
		angle = 90
	case dosing.TrendFall, dosing.TrendStrongFall:
		angle = 180
	default:
		return
	}

	dc.Push()
	defer dc.Pop()

	dc.Translate(x, y)
	dc.Rotate(gg.Radians(angle))

	if trend == dosing.TrendStrongRise || trend == dosing.TrendStrongFall {
		halfSize := size / 2
		drawSingleArrow(dc, 0, -halfSize/2, size*0.8)
		drawSingleArrow(dc, 0, halfSize/2, size*0.8)
		return
	}
	drawSingleArrow(dc, 0, 0, size)
}

// drawSingleArrow draws an upward arrow centred at ox, oy
func drawSingleArrow(dc *gg.Context, ox, oy, s float64) {
	w := s * 0.5

	dc.NewSubPath()
	dc.MoveTo(ox, oy-s/2) // tip
	dc.LineTo(ox+w/2, oy)
	dc.LineTo(ox+w/6, oy)
	dc.LineTo(ox+w/6, oy+s/2)
	dc.LineTo(ox-w/6, oy+s/2)
	dc.LineTo(ox-w/6, oy)
	dc.LineTo(ox-w/2, oy)
	dc.ClosePath()
	dc.Fill()
}

// getStatusColor returns the tile colour for the last known status
func (t *Icon) getStatusColor() string {
	if t.lastStatus == nil {
		return "#808080"
	}
	if t.lastStatus.IsStale {
		return "#9ca3af"
	}

	switch t.lastStatus.Status {
	case statusUrgentLow, statusUrgentHigh:
		return "#ef4444"
	case statusLow:
		return "#f97316"
	case statusHigh:
		return "#facc15"
	default:
		return "#4ade80"
	}
}

// parseHexColor parses a #rrggbb string; anything else is black
func parseHexColor(hex string) (r, g, b byte) {
	if len(hex) == 7 && hex[0] == '#' {
		_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	}
	return
}

// imageToICO wraps a PNG encoding of img in a single-entry ICO container:
// ICONDIR (6 bytes), one ICONDIRENTRY (16 bytes), then the PNG data.
func imageToICO(img image.Image) []byte {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil
	}
	pngData := pngBuf.Bytes()

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint16(0)) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // type ICO
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // image count

	bounds := img.Bounds()
	buf.WriteByte(icoDimension(bounds.Dx()))
	buf.WriteByte(icoDimension(bounds.Dy()))
	buf.WriteByte(0) // no palette
	buf.WriteByte(0) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // colour planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bits per pixel
	// #nosec G115 -- PNG size is limited by memory and will not overflow uint32
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(22)) // data offset

	buf.Write(pngData)
	return buf.Bytes()
}

// icoDimension encodes a width or height; 0 means 256
func icoDimension(n int) byte {
	if n >= 256 {
		return 0
	}
	return byte(n)
}
