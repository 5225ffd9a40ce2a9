package myaudio

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/arribada/audiocontroller/internal/conf"
	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/observability/metrics"
)

// ringSlices is the capture ring capacity in slices
const ringSlices = 8

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// MalgoConfig configures a miniaudio capture device
type MalgoConfig struct {
	Device      string // device id or a substring of its name
	SampleRate  uint32 // requested rate
	Backend     string // empty selects one by GOOS
	SliceLength int
	Debug       bool
	Metrics     *metrics.PipelineMetrics
}

// MalgoSource captures from a miniaudio device. The device callback writes
// S16 mono frames into a ring buffer and ReadSlice drains it.
type MalgoSource struct {
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	ring       *ringbuffer.RingBuffer
	notify     chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once
	name       string
	id         string
	sampleRate uint32
	readBuf    []byte

	metrics        *metrics.PipelineMetrics
	overrunLimiter *rate.Limiter
	log            logger.Logger
}

// OpenMalgoSource opens and starts the capture device
func OpenMalgoSource(cfg MalgoConfig) (*MalgoSource, error) {
	log := GetLogger().Module("malgo")

	backends, err := selectBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	malgoCtx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		if cfg.Debug {
			log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
		}
	})
	if err != nil {
		return nil, newCaptureError("init_context", cfg.Device, cfg.SampleRate, err)
	}

	s := &MalgoSource{
		malgoCtx:       malgoCtx,
		notify:         make(chan struct{}, 1),
		stopped:        make(chan struct{}),
		metrics:        cfg.Metrics,
		overrunLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		log:            log,
	}

	if err := s.openDevice(cfg); err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, err
	}
	return s, nil
}

func (s *MalgoSource) openDevice(cfg MalgoConfig) error {
	infos, err := s.malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return newCaptureError("list_devices", cfg.Device, cfg.SampleRate, err)
	}

	selected := -1
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			s.log.Debug("cannot decode device id", logger.Int("index", i), logger.Error(err))
			continue
		}
		if matchesDevice(decodedID, infos[i].Name(), infos[i].IsDefault == 1, cfg.Device) {
			selected = i
			s.id = decodedID
			s.name = infos[i].Name()
			break
		}
	}
	if selected < 0 {
		return newCaptureError("open", cfg.Device, cfg.SampleRate, fmt.Errorf("no capture device matches %q", cfg.Device))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = conf.NumChannels
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Capture.DeviceID = infos[selected].ID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	}

	device, err := malgo.InitDevice(s.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return newCaptureError("init_device", cfg.Device, cfg.SampleRate, err)
	}

	if device.CaptureFormat() != malgo.FormatS16 || device.CaptureChannels() != conf.NumChannels {
		device.Uninit()
		return newCaptureError("configure", cfg.Device, cfg.SampleRate,
			fmt.Errorf("device delivers format %d with %d channels, want S16 mono",
				device.CaptureFormat(), device.CaptureChannels()))
	}

	s.device = device
	s.sampleRate = device.SampleRate()
	if s.sampleRate != cfg.SampleRate {
		s.log.Warn("device coerced the sample rate",
			logger.Uint64("requested", uint64(cfg.SampleRate)),
			logger.Uint64("effective", uint64(s.sampleRate)))
	}

	sliceBytes := max(cfg.SliceLength, 1) * 2
	s.ring = ringbuffer.New(sliceBytes * ringSlices)
	s.readBuf = make([]byte, sliceBytes)

	if err := device.Start(); err != nil {
		device.Uninit()
		return newCaptureError("start", cfg.Device, cfg.SampleRate, err)
	}

	s.log.Info("listening on source",
		logger.String("name", s.name),
		logger.String("id", s.id),
		logger.Uint64("sample_rate", uint64(s.sampleRate)))
	return nil
}

// onData runs on the miniaudio thread
func (s *MalgoSource) onData(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	if s.ring.Free() < len(input) {
		s.overrun(len(input))
		return
	}
	if _, err := s.ring.Write(input); err != nil {
		s.overrun(len(input))
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *MalgoSource) overrun(n int) {
	s.metrics.RecordOverrun(n)
	if s.overrunLimiter.Allow() {
		s.log.Warn("capture buffer overrun, frames dropped",
			logger.Int("bytes", n),
			logger.Int("buffered", s.ring.Length()))
	}
}

func (s *MalgoSource) onStop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// ReadSlice implements Source
func (s *MalgoSource) ReadSlice(ctx context.Context, dst []int16) error {
	need := len(dst) * 2
	if cap(s.readBuf) < need {
		s.readBuf = make([]byte, need)
	}
	buf := s.readBuf[:need]

	for s.ring.Length() < need {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopped:
			return newCaptureError("read_slice", s.id, s.sampleRate, ErrDeviceStopped)
		case <-s.notify:
		}
	}

	n, err := s.ring.Read(buf)
	if err != nil {
		return newCaptureError("read_slice", s.id, s.sampleRate, err)
	}
	if n != need {
		return newCaptureError("read_slice", s.id, s.sampleRate, fmt.Errorf("short read: %d of %d bytes", n, need))
	}
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	return nil
}

// SampleRate implements Source
func (s *MalgoSource) SampleRate() uint32 { return s.sampleRate }

// Name implements Source
func (s *MalgoSource) Name() string { return s.name }

// Close stops the device and releases the miniaudio context
func (s *MalgoSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.device != nil {
			if stopErr := s.device.Stop(); stopErr != nil {
				err = newCaptureError("stop", s.id, s.sampleRate, stopErr)
			}
			s.device.Uninit()
		}
		if uninitErr := s.malgoCtx.Uninit(); uninitErr != nil && err == nil {
			err = newCaptureError("uninit_context", s.id, s.sampleRate, uninitErr)
		}
		s.malgoCtx.Free()
		s.onStop()
	})
	return err
}

// ListDevices enumerates capture devices on the selected backend
func ListDevices(backend string) ([]DeviceInfo, error) {
	backends, err := selectBackend(backend)
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "list_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			GetLogger().Debug("cannot decode device id", logger.Int("index", i), logger.Error(err))
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodedID,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectBackend maps a backend name to miniaudio backends; empty picks one by GOOS
func selectBackend(name string) ([]malgo.Backend, error) {
	switch name {
	case "":
		switch runtime.GOOS {
		case "linux":
			return []malgo.Backend{malgo.BackendAlsa}, nil
		case "windows":
			return []malgo.Backend{malgo.BackendWasapi}, nil
		case "darwin":
			return []malgo.Backend{malgo.BackendCoreaudio}, nil
		default:
			return nil, nil
		}
	case "alsa":
		return []malgo.Backend{malgo.BackendAlsa}, nil
	case "pulseaudio":
		return []malgo.Backend{malgo.BackendPulseaudio}, nil
	case "jack":
		return []malgo.Backend{malgo.BackendJack}, nil
	case "coreaudio":
		return []malgo.Backend{malgo.BackendCoreaudio}, nil
	case "wasapi":
		return []malgo.Backend{malgo.BackendWasapi}, nil
	case "null":
		return []malgo.Backend{malgo.BackendNull}, nil
	default:
		return nil, errors.Newf("unsupported audio backend %q", name).
			Component("myaudio").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// matchesDevice checks a device against the user's device argument
func matchesDevice(decodedID, name string, isDefault bool, source string) bool {
	if source == "default" || (runtime.GOOS == "windows" && source == "sysdefault") {
		return isDefault
	}
	return decodedID == source || strings.Contains(name, source)
}

// hexToASCII decodes a miniaudio device id
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
