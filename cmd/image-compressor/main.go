package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor-go/internal/codec"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	quiet      bool
	quality    int
	outputPath string
	port       int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Recompress a batch of images and bundle them into one archive",
	Long: `image-compressor re-encodes a batch of images at a single quality level,
keeping each image's original format, and bundles the results into a ZIP
archive together with per-file and overall size statistics.

Features:
- JPEG quality re-encoding, PNG maximum compression, GIF palette reduction
- One quality setting (0-100) for the whole batch
- Broken images are reported without aborting the batch
- Web interface with live progress`,
}

// compressCmd compresses files and directories into an archive.
var compressCmd = &cobra.Command{
	Use:   "compress <file|directory>...",
	Short: "Compress images and write them into a ZIP archive",
	Long: `Compress every given image (directories are scanned recursively for
supported extensions) at the chosen quality and write the successfully
compressed images into a ZIP archive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// inspectCmd shows what the codec detects in a single file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show detected format and dimensions of an image",
	Long: `Decodes a single file and prints its detected format, dimensions and size.
This is useful for checking why an image fails to compress.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a web server with an upload form for batch compression.
The web interface allows you to:
- Upload several images at once
- Choose the compression quality
- Follow per-image progress in real-time
- Download all compressed images as one ZIP archive

Access the interface at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressCmd.Flags().IntVarP(&quality, "quality", "q", compressor.DefaultQuality, "compression quality (0-100)")
	compressCmd.Flags().StringVarP(&outputPath, "output", "o", "", "archive path (default: compression.archive_name)")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default: server.port)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes a batch from the command line.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cmd.Flags().Changed("quality") {
		quality = cfg.Compression.DefaultQuality
	}
	if outputPath == "" {
		outputPath = cfg.Compression.ArchiveName
	}

	log := setupLogger(cfg)

	items, err := collectItems(args, cfg.Compression.SupportedExtensions, log)
	if err != nil {
		return fmt.Errorf("failed to collect images: %w", err)
	}
	if len(items) == 0 {
		log.Info("No images found to compress")
	}

	c := compressor.NewBatchCompressor(codec.NewImagingCodec(), log,
		compressor.WithWorkers(cfg.Compression.Workers))
	batch, err := c.CompressBatch(items, quality)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if err := os.WriteFile(outputPath, batch.Archive, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	if !quiet {
		printBatch(os.Stdout, batch)
		fmt.Printf("\nArchive written to %s (%d images)\n", outputPath, batch.ArchiveEntries)
	}
	return nil
}

// runInspect decodes one file and prints what was detected.
func runInspect(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	fmt.Printf("Inspecting: %s\n", filePath)
	img, format, err := codec.NewImagingCodec().Decode(data)
	if err != nil {
		fmt.Printf("Error decoding image: %v\n", err)
		return nil
	}

	b := img.Bounds()
	fmt.Printf("Format: %s\n", format)
	fmt.Printf("Dimensions: %dx%d\n", b.Dx(), b.Dy())
	fmt.Printf("Size: %d bytes\n", len(data))
	fmt.Printf("Re-encodable: %t\n", format.Reencodable())

	meta, err := metadata.Read(data)
	if err != nil {
		fmt.Println("No EXIF metadata found")
		return nil
	}
	fmt.Println("EXIF metadata (dropped on compression):")
	if meta.DateTime != nil {
		fmt.Printf("  Date: %s\n", meta.DateTime.Format("2006-01-02 15:04:05"))
	}
	if meta.Make != "" || meta.Model != "" {
		fmt.Printf("  Camera: %s %s\n", meta.Make, meta.Model)
	}
	if meta.Software != "" {
		fmt.Printf("  Software: %s\n", meta.Software)
	}
	if meta.Orientation != 0 {
		fmt.Printf("  Orientation: %d\n", meta.Orientation)
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log, codec.NewImagingCodec())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Image Compressor web interface started\n")
	fmt.Printf("Open your browser and go to: http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
