package engine

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/stellatune/internal/pluginhost"
	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/stellaerr"
	"github.com/friendsincode/stellatune/internal/track"
)

// primingChunkFrames is the size of the decode priming chunk read by the preload
// thread before handing the warm decoder to the decode worker (spec §4.E "Preload":
// "decodes a small (~2048-frame) priming chunk").
const primingChunkFrames = 2048

// PromotedPreload is handed to the decode worker once a preload request completes
// successfully and is still current (spec §4.E: "hands the warm decoder to the decode
// worker via a typed PromotedPreload message").
type PromotedPreload struct {
	Token      uint64
	Path       string
	PositionMS int64
	Decoder    *cabi.Decoder
	Closer     func()
	Priming    []float32
	Channels   int
}

// PreloadResult is delivered on the channel Begin returns. A late reply whose
// (path, position_ms, token) no longer matches the current request must be discarded
// (spec §4.E / §9 "Preload correctness") — callers compare Token against
// Preloader.CurrentToken() before acting on it, and must call Closer on a discarded
// successful result to release the warmed decoder instance.
type PreloadResult struct {
	Token      uint64
	Path       string
	PositionMS int64
	Promoted   *PromotedPreload
	Err        error
}

// Preloader runs the dedicated preload thread: open decoder, seek, prime, hand off.
type Preloader struct {
	host  *pluginhost.Host
	group singleflight.Group
	token atomic.Uint64
}

// NewPreloader returns a Preloader resolving decoders through host.
func NewPreloader(host *pluginhost.Host) *Preloader {
	return &Preloader{host: host}
}

// Begin issues a new token and spawns the dedicated preload goroutine for
// PreloadTrack{path, position_ms}. Concurrent requests for the same (path,
// position_ms) share one in-flight decode-and-prime via singleflight.
func (p *Preloader) Begin(path string, positionMS int64) (token uint64, results <-chan PreloadResult) {
	tok := p.token.Add(1)
	out := make(chan PreloadResult, 1)

	go func() {
		key := path + "\x00" + strconv.FormatInt(positionMS, 10)
		v, err, _ := p.group.Do(key, func() (interface{}, error) {
			return p.openAndPrime(path, positionMS)
		})
		res := PreloadResult{Token: tok, Path: path, PositionMS: positionMS, Err: err}
		if err == nil {
			promoted := v.(PromotedPreload)
			promoted.Token = tok
			res.Promoted = &promoted
		}
		out <- res
	}()

	return tok, out
}

func (p *Preloader) openAndPrime(path string, positionMS int64) (PromotedPreload, error) {
	tok := track.Parse(path)
	ext := ""
	if tok.IsLocal() {
		ext = strings.TrimPrefix(filepath.Ext(tok.Path), ".")
	}

	candidates := p.host.SelectDecoder(ext, nil)
	if len(candidates) == 0 {
		return PromotedPreload{}, stellaerr.New(stellaerr.KindUnsupported, "no decoder candidate for preload input")
	}
	gen, ok := p.host.ActiveGeneration(candidates[0].PluginID)
	if !ok {
		return PromotedPreload{}, stellaerr.New(stellaerr.KindNotPrepared, "selected decoder plugin is no longer active")
	}

	dec, closer, err := p.host.OpenDecoder(gen, path)
	if err != nil {
		return PromotedPreload{}, err
	}

	if positionMS > 0 {
		if err := dec.SeekMs(positionMS); err != nil {
			closer()
			return PromotedPreload{}, err
		}
	}

	info, err := dec.GetInfo()
	if err != nil {
		closer()
		return PromotedPreload{}, err
	}

	channels := int(info.Channels)
	if channels <= 0 {
		channels = 1
	}
	buf := make([]float32, primingChunkFrames*channels)
	n, err := dec.ReadInterleavedF32(buf, channels)
	if err != nil {
		closer()
		return PromotedPreload{}, err
	}

	return PromotedPreload{
		Path:       path,
		PositionMS: positionMS,
		Decoder:    dec,
		Closer:     closer,
		Priming:    buf[:n*channels],
		Channels:   channels,
	}, nil
}

// CurrentToken returns the most recently issued preload token.
func (p *Preloader) CurrentToken() uint64 { return p.token.Load() }

// IsStale reports whether res is behind the most recently issued token.
func (p *Preloader) IsStale(res PreloadResult) bool { return res.Token != p.token.Load() }
