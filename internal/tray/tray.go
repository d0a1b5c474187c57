// Package tray provides the relay's system tray menu using
// getlantern/systray.
package tray

import (
	"encoding/binary"

	"webfitts/internal/control"
	"webfitts/internal/protocol"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID       int
	Title    string
	Tooltip  string
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	title   string
	tooltip string
	items   []*MenuItem
	quitCh  chan struct{}
	log     *zap.Logger
}

// New creates a new system tray
func New(title, tooltip string, logger *zap.Logger) *Tray {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tray{
		title:   title,
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
		log:     logger.With(zap.String("component", "tray")),
	}
}

// AddMenuItem adds a menu item to the tray. Items must be added before Run.
func (t *Tray) AddMenuItem(title, tooltip string, callback func()) int {
	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Tooltip:  tooltip,
		Callback: callback,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.items = append(t.items, nil) // nil indicates separator
}

// Items returns the menu in display order; nil entries are separators.
func (t *Tray) Items() []*MenuItem {
	return t.items
}

// Run starts the tray event loop. It blocks and must be called from the
// main goroutine on macOS.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Done is closed when the tray has exited.
func (t *Tray) Done() <-chan struct{} {
	return t.quitCh
}

func (t *Tray) setupMenu() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(targetIcon())

	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}
		menuItem.item = systray.AddMenuItem(menuItem.Title, menuItem.Tooltip)
		if menuItem.Callback == nil {
			continue
		}
		go func(mi *MenuItem) {
			for {
				select {
				case <-mi.item.ClickedCh:
					t.log.Debug("Menu item clicked", zap.String("item", mi.Title))
					mi.Callback()
				case <-t.quitCh:
					return
				}
			}
		}(menuItem)
	}
	t.log.Info("Tray ready")
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// NewRelayMenu builds the relay's tray: control toggles and a click
// trigger broadcast to every study client, then Quit.
func NewRelayMenu(b control.Broadcaster, onQuit func(), logger *zap.Logger) *Tray {
	t := New("WebFitts", "WebFitts relay", logger)
	t.AddMenuItem("Enable control", "Let the relay drive the study cursor",
		t.broadcast(b, protocol.CommandEnableControl))
	t.AddMenuItem("Disable control", "Return the cursor to the participant",
		t.broadcast(b, protocol.CommandDisableControl))
	t.AddMenuItem("Trigger click", "Click at the study cursor",
		t.broadcast(b, protocol.CommandTriggerClick))
	t.AddSeparator()
	t.AddMenuItem("Quit", "Stop the relay", func() {
		if onQuit != nil {
			onQuit()
		}
		t.Stop()
	})
	return t
}

func (t *Tray) broadcast(b control.Broadcaster, name protocol.CommandName) func() {
	return func() {
		if err := b.BroadcastCommand(name, nil); err != nil {
			t.log.Warn("Command not sent", zap.String("command", string(name)), zap.Error(err))
		}
	}
}

// targetIcon renders a 16x16 32-bit ICO filled with the study target color.
func targetIcon() []byte {
	const (
		size       = 16
		headerLen  = 6 + 16
		dibLen     = 40
		pixelLen   = size * size * 4
		maskLen    = size * 4 // 1bpp rows padded to 32 bits
		imageBytes = dibLen + pixelLen + maskLen
	)
	icon := make([]byte, headerLen+imageBytes)
	le := binary.LittleEndian

	// ICONDIR
	le.PutUint16(icon[2:], 1) // type: icon
	le.PutUint16(icon[4:], 1) // count

	// ICONDIRENTRY
	icon[6], icon[7] = size, size
	le.PutUint16(icon[10:], 1)  // planes
	le.PutUint16(icon[12:], 32) // bpp
	le.PutUint32(icon[14:], imageBytes)
	le.PutUint32(icon[18:], headerLen)

	// BITMAPINFOHEADER; height counts the AND mask too.
	dib := icon[headerLen:]
	le.PutUint32(dib[0:], dibLen)
	le.PutUint32(dib[4:], size)
	le.PutUint32(dib[8:], size*2)
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelLen)

	// BGRA pixels; corners left transparent for a rounded look.
	px := dib[dibLen:]
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			corner := (x == 0 || x == size-1) && (y == 0 || y == size-1)
			if corner {
				continue
			}
			i := (y*size + x) * 4
			px[i], px[i+1], px[i+2], px[i+3] = 0x70, 0x99, 0x3D, 0xFF
		}
	}
	return icon
}
