package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"

	"github.com/cbegin/touchpiano-go"
	"github.com/cbegin/touchpiano-go/internal/config"
	"github.com/cbegin/touchpiano-go/internal/keyboard"
)

const (
	minWindowW = 480
	minWindowH = 240
	statusH    = 44

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	// mouseTouchID lets the left mouse button act as one more finger.
	mouseTouchID touchpiano.TouchID = -1
)

var (
	bgColor        = color.RGBA{192, 192, 192, 255}
	borderColor    = color.RGBA{128, 128, 128, 255}
	whiteKeyColor  = color.RGBA{240, 240, 236, 255}
	blackKeyColor  = color.RGBA{24, 24, 32, 255}
	activeKeyColor = color.RGBA{0, 0, 128, 255}
	errorColor     = color.RGBA{128, 0, 0, 255}

	bevelLight  = color.RGBA{255, 255, 255, 255}
	bevelDarker = color.RGBA{64, 64, 64, 255}
)

type phase int

const (
	phaseWelcome phase = iota
	phaseLoading
	phasePlaying
	phaseFailed
)

type game struct {
	cfg     config.Config
	log     zerolog.Logger
	session *touchpiano.Session
	keys    *keyboard.Layout

	phase      phase
	loaded     atomic.Int64
	total      atomic.Int64
	startErr   chan error
	failure    string
	cancelLoad context.CancelFunc

	touchIDs []ebiten.TouchID
	points   []touchpiano.TouchPoint
	focused  bool

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(cfg config.Config, log zerolog.Logger) (*game, error) {
	keys := keyboard.New(cfg.Notes, boardRect(cfg.WindowWidth, cfg.WindowHeight))
	decoder, err := cfg.Decoder()
	if err != nil {
		return nil, err
	}
	session, err := touchpiano.NewSession(cfg.Fetcher(), keys,
		touchpiano.WithNotes(cfg.Notes),
		touchpiano.WithSampleRate(cfg.SampleRate),
		touchpiano.WithDecoder(decoder),
		touchpiano.WithReleaseDuration(cfg.ReleaseDuration()),
		touchpiano.WithTickRate(ebiten.TPS()),
		touchpiano.WithLoadConcurrency(cfg.LoadConcurrency),
		touchpiano.WithMasterVolume(cfg.Volume),
		touchpiano.WithObserver(keys),
		touchpiano.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &game{
		cfg:       cfg,
		log:       log,
		session:   session,
		keys:      keys,
		startErr:  make(chan error, 1),
		focused:   true,
		textCache: make(map[string]*ebiten.Image, 64),
		viewW:     cfg.WindowWidth,
		viewH:     cfg.WindowHeight,
	}, nil
}

func (g *game) Update() error {
	switch g.phase {
	case phaseWelcome:
		if g.startGesture() {
			g.beginLoading()
		}
	case phaseLoading:
		g.pollLoading()
	case phasePlaying:
		g.handleFocus()
		g.handleTouches()
		g.handleMouse()
		g.session.Update()
	}
	return nil
}

func (g *game) startGesture() bool {
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return true
	}
	g.touchIDs = inpututil.AppendJustPressedTouchIDs(g.touchIDs[:0])
	return len(g.touchIDs) > 0
}

// beginLoading runs the loader off the game loop. Touch input is only
// handled once the game reaches phasePlaying.
func (g *game) beginLoading() {
	g.phase = phaseLoading
	g.total.Store(int64(len(g.cfg.Notes)))
	ctx, cancel := context.WithCancel(context.Background())
	g.cancelLoad = cancel
	go func() {
		g.startErr <- g.session.Start(ctx, func(loaded, total int) {
			g.loaded.Store(int64(loaded))
			g.total.Store(int64(total))
		})
	}()
}

func (g *game) pollLoading() {
	select {
	case err := <-g.startErr:
		if err != nil {
			g.log.Error().Err(err).Msg("Session start failed")
			g.failure = err.Error()
			g.phase = phaseFailed
			return
		}
		g.log.Info().Str("session_id", g.session.ID()).Msg("Ready")
		g.phase = phasePlaying
	default:
	}
}

func (g *game) handleFocus() {
	focused := ebiten.IsFocused()
	if g.focused && !focused {
		g.session.CancelAll()
	}
	g.focused = focused
}

func (g *game) handleTouches() {
	g.touchIDs = inpututil.AppendJustPressedTouchIDs(g.touchIDs[:0])
	g.points = g.points[:0]
	for _, id := range g.touchIDs {
		x, y := ebiten.TouchPosition(id)
		g.points = append(g.points, touchpiano.TouchPoint{ID: touchpiano.TouchID(id), X: x, Y: y})
	}
	if len(g.points) > 0 {
		g.session.TouchStart(g.points...)
	}

	g.touchIDs = ebiten.AppendTouchIDs(g.touchIDs[:0])
	g.points = g.points[:0]
	for _, id := range g.touchIDs {
		x, y := ebiten.TouchPosition(id)
		g.points = append(g.points, touchpiano.TouchPoint{ID: touchpiano.TouchID(id), X: x, Y: y})
	}
	if len(g.points) > 0 {
		g.session.TouchMove(g.points...)
	}

	g.touchIDs = inpututil.AppendJustReleasedTouchIDs(g.touchIDs[:0])
	g.points = g.points[:0]
	for _, id := range g.touchIDs {
		x, y := inpututil.TouchPositionInPreviousTick(id)
		g.points = append(g.points, touchpiano.TouchPoint{ID: touchpiano.TouchID(id), X: x, Y: y})
	}
	if len(g.points) > 0 {
		g.session.TouchEnd(g.points...)
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	p := touchpiano.TouchPoint{ID: mouseTouchID, X: mx, Y: my}
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		g.session.TouchStart(p)
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		g.session.TouchEnd(p)
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		g.session.TouchMove(p)
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	status := image.Rect(0, 0, g.viewW, statusH)
	drawBorder(screen, status)

	switch g.phase {
	case phaseWelcome:
		g.drawCentered(screen, "Tap to start")
	case phaseLoading:
		g.drawText(screen, fmt.Sprintf("Loading %d / %d", g.loaded.Load(), g.total.Load()), 12, (statusH-lineH)/2)
	case phaseFailed:
		ebitenutil.DrawRect(screen, 0, 0, float64(g.viewW), statusH, errorColor)
		g.drawText(screen, "Error", 12, (statusH-lineH)/2)
		g.drawCentered(screen, shortenEnd(g.failure, g.viewW/charW-2))
	case phasePlaying:
		active, _, releasing := g.session.Stats()
		g.drawText(screen, fmt.Sprintf("touches %d  releasing %d", active, releasing), 12, (statusH-lineH)/2)
		g.drawBoard(screen)
	}
}

func (g *game) drawBoard(screen *ebiten.Image) {
	for _, k := range g.keys.Keys() {
		fill := whiteKeyColor
		if k.Black {
			fill = blackKeyColor
		}
		if g.keys.IsActive(k.Note) {
			fill = activeKeyColor
		}
		r := k.Rect
		ebitenutil.DrawRect(screen, float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), fill)
		drawBorder(screen, r)
		if !k.Black {
			g.drawText(screen, k.Note, r.Min.X+(r.Dx()-len(k.Note)*charW)/2, r.Max.Y-lineH-8)
		}
	}
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	if outsideW < minWindowW {
		outsideW = minWindowW
	}
	if outsideH < minWindowH {
		outsideH = minWindowH
	}
	if outsideW != g.viewW || outsideH != g.viewH {
		// Geometry changes under held fingers would silently retarget them.
		g.session.CancelAll()
	}
	g.viewW = outsideW
	g.viewH = outsideH
	g.keys.Resize(boardRect(outsideW, outsideH))
	return outsideW, outsideH
}

func (g *game) Close() {
	if g.cancelLoad != nil {
		g.cancelLoad()
	}
	if err := g.session.Close(); err != nil {
		g.log.Warn().Err(err).Msg("Failed to close session")
	}
}

func boardRect(w, h int) image.Rectangle {
	pad := 12
	return image.Rect(pad, statusH+pad, w-pad, h-pad)
}

// drawBorder draws a raised 3D bevel (highlight top/left, shadow bottom/right).
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

func (g *game) drawCentered(screen *ebiten.Image, msg string) {
	x := (g.viewW - len([]rune(msg))*charW) / 2
	y := statusH + (g.viewH-statusH-lineH)/2
	g.drawText(screen, msg, x, y)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 512 {
			g.textCache = make(map[string]*ebiten.Image, 64)
		}
		g.textCache[msg] = img
	}
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars || maxChars < 4 {
		return s
	}
	return string(r[:maxChars-3]) + "..."
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a touchpiano.toml")
		assets     = flag.String("assets", "", "directory or URL containing assets/samples/ (overrides config)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	cfg, err := config.Load(log, *configPath, config.SearchPaths()...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *assets != "" {
		cfg.Assets = *assets
	}
	if *debug || cfg.Debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	g, err := newGame(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create game")
	}
	defer g.Close()

	ebiten.SetWindowSize(cfg.WindowWidth, cfg.WindowHeight)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("touchpiano")
	if err := ebiten.RunGame(g); err != nil {
		log.Error().Err(err).Msg("game loop exited")
	}
}
