package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"videoforge/batch"
	"videoforge/config"
	"videoforge/ffmpeg"
	"videoforge/logging"
	"videoforge/tui"
)

func main() {
	_ = godotenv.Load()

	log, closeLog := logging.New()
	if closeLog != nil {
		defer closeLog()
	}

	// Define flags
	presetFlag := flag.String("preset", "", "Preset to start from, e.g. \"YouTube 1080p\" (see -list-presets)")
	listPresets := flag.Bool("list-presets", false, "List all available presets and exit")
	outFlag := flag.String("out", "", "Output folder (default: next to each input)")
	formatFlag := flag.String("format", "", "Output container: mp4, mkv, mov, avi, webm, gif")
	crfFlag := flag.Int("crf", 0, "Constant Rate Factor, 0-51 (lower is better quality)")
	speedPresetFlag := flag.String("speed-preset", "", "Encoder speed preset: ultrafast .. veryslow")
	hwFlag := flag.String("hw", "", "Hardware encoder: none, nvenc, amf, videotoolbox, qsv")
	concurrencyFlag := flag.Int("concurrency", 1, "Jobs to run in parallel")
	resolutionFlag := flag.String("resolution", "", "Resolution preset: 4K, 1080p, 720p, 480p, 360p")
	muteFlag := flag.Bool("mute", false, "Strip the audio track")
	normalizeFlag := flag.Bool("normalize", false, "Normalize audio loudness")
	speedFlag := flag.Float64("speed", 0, "Playback speed multiplier, 0.25-4.0")
	trimStartFlag := flag.Float64("trim-start", 0, "Trim start, in seconds")
	trimEndFlag := flag.Float64("trim-end", 0, "Trim end, in seconds (0 = until the end)")
	subsFlag := flag.String("subs", "", "Subtitle file to burn in")
	watermarkFlag := flag.String("watermark", "", "Image file to overlay")
	gifFlag := flag.Bool("gif", false, "Produce an animated GIF")
	extractFlag := flag.Bool("extract-audio", false, "Extract the audio track only")
	audioFormatFlag := flag.String("audio-format", "", "Audio codec/format: aac, mp3, wav, opus")
	mergeFlag := flag.Bool("merge", false, "Concatenate all inputs into one output")

	// Custom usage
	flag.Usage = func() {
		fmt.Println("Usage: videoforge [options] <input-file> [input-file...]")
		fmt.Println()
		fmt.Println("Batch video converter and compressor built on FFmpeg.")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  videoforge movie.mkv                          # Compress with defaults")
		fmt.Println("  videoforge -preset=\"WhatsApp Size\" *.mp4      # Apply a preset to a batch")
		fmt.Println("  videoforge -gif -trim-end=5 clip.mp4          # First five seconds as a GIF")
		fmt.Println("  videoforge -merge part1.mp4 part2.mp4         # Concatenate clips")
	}

	flag.Parse()

	configDir := config.DefaultConfigDir()
	presets := config.NewPresetManager(configDir, log)

	// Handle --list-presets
	if *listPresets {
		fmt.Println("Available presets:")
		fmt.Println()
		for _, name := range presets.Names() {
			kind := "user"
			if presets.IsBuiltin(name) {
				kind = "built-in"
			}
			fmt.Printf("  %-22s (%s)\n", name, kind)
		}
		os.Exit(0)
	}

	inputs := flag.Args()
	if len(inputs) < 1 {
		flag.Usage()
		os.Exit(1)
	}
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Input file not found: %s\n", in)
			os.Exit(1)
		}
	}

	// Base configuration: last session's settings, or the chosen preset.
	settings := config.NewSettingsStore(configDir, log)
	cfg := settings.Load()
	if *presetFlag != "" {
		preset, ok := presets.Get(*presetFlag)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: Unknown preset %q\n", *presetFlag)
			fmt.Fprintf(os.Stderr, "Available presets: %s\n", strings.Join(presets.Names(), ", "))
			os.Exit(1)
		}
		cfg = preset
	}

	// Explicitly passed flags win over preset and stored settings.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.OutputFolder = *outFlag
		case "format":
			cfg.OutputFormat = strings.ToLower(*formatFlag)
		case "crf":
			cfg.CRF = *crfFlag
		case "speed-preset":
			cfg.PresetSpeed = *speedPresetFlag
		case "hw":
			accel := config.HWAccel(strings.ToLower(*hwFlag))
			cfg.HWAccel = accel
			cfg.UseHWAccel = accel != config.HWNone
		case "resolution":
			cfg.ChangeResolution = true
			cfg.ResolutionPreset = *resolutionFlag
		case "mute":
			cfg.MuteAudio = *muteFlag
		case "normalize":
			cfg.NormalizeAudio = *normalizeFlag
		case "speed":
			cfg.SpeedFactor = *speedFlag
		case "trim-start":
			cfg.TrimEnabled = true
			cfg.TrimStart = *trimStartFlag
		case "trim-end":
			cfg.TrimEnabled = true
			cfg.TrimEnd = *trimEndFlag
		case "subs":
			cfg.SubtitlePath = *subsFlag
			cfg.SubtitleEnabled = *subsFlag != ""
		case "watermark":
			cfg.WatermarkPath = *watermarkFlag
		case "gif":
			cfg.CreateGIF = *gifFlag
			if *gifFlag {
				cfg.OutputFormat = "gif"
			}
		case "extract-audio":
			cfg.ExtractAudioOnly = *extractFlag
		case "audio-format":
			cfg.AudioFormat = strings.ToLower(*audioFormatFlag)
			if cfg.ExtractAudioOnly {
				cfg.OutputFormat = cfg.AudioFormat
			}
		}
	})

	ctx := context.Background()

	detector := ffmpeg.NewDetector(log)
	detector.FFmpegPath = os.Getenv("VIDEOFORGE_FFMPEG")
	detector.FFprobePath = os.Getenv("VIDEOFORGE_FFPROBE")
	caps, err := detector.Detect(ctx)
	if err != nil {
		if errors.Is(err, ffmpeg.ErrToolNotFound) {
			fmt.Fprintln(os.Stderr, "Error: FFmpeg not found. Install it or set VIDEOFORGE_FFMPEG.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	prober := ffmpeg.NewProber(caps, log)
	mgr := batch.NewManager(caps, batch.Options{
		Concurrency: *concurrencyFlag,
		Logger:      log,
	})

	if *mergeFlag {
		if len(inputs) < 2 {
			fmt.Fprintln(os.Stderr, "Error: -merge needs at least two inputs")
			os.Exit(1)
		}
		jobCfg := cfg
		jobCfg.InputPath = inputs[0]
		jobCfg.MergeInputs = inputs[1:]
		jobCfg.OutputPath = jobCfg.OutputPathFor(inputs[0])
		info := probeOrWarn(ctx, prober, inputs[0])
		if _, err := mgr.Enqueue(jobCfg, info); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		for _, in := range inputs {
			jobCfg := cfg
			jobCfg.InputPath = in
			jobCfg.OutputPath = jobCfg.OutputPathFor(in)
			info := probeOrWarn(ctx, prober, in)
			if _, err := mgr.Enqueue(jobCfg, info); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s: %v\n", in, err)
				os.Exit(1)
			}
		}
	}

	settings.Save(cfg)

	// Create and run the TUI
	model := tui.NewModel(mgr)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	stats := mgr.Stats()
	if stats.Failed > 0 {
		os.Exit(1)
	}
}

// probeOrWarn probes one input and degrades to nil metadata on failure; the
// job still runs, with progress derived from the process's own output.
func probeOrWarn(ctx context.Context, prober *ffmpeg.Prober, path string) *ffmpeg.MediaInfo {
	info, err := prober.Probe(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not probe %s: %v\n", path, err)
		return nil
	}
	return info
}
