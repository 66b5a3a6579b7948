// dialogctl is a small client for the realtime speech dialog gateway: it
// streams a raw PCM file through a dialog session, prints transcripts to
// stdout, and saves the synthesized reply audio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	dialog "github.com/volcvoice/dialog-go-sdk"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dialogctl",
		Short: "Talk to the realtime speech dialog gateway",
		Long: `dialogctl drives one realtime dialog session from the command line.

It connects to the gateway, streams a raw PCM audio file as if it were a
live microphone, prints the recognized speech and the model's reply text,
and writes the synthesized reply audio to a file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		configPath string
		audioPath  string
		outPath    string
		chunkMS    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream an audio file through a dialog session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, audioPath, outPath, chunkMS)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "input audio file (raw 16 kHz s16le PCM)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "reply.pcm", "output file for synthesized audio")
	cmd.Flags().IntVar(&chunkMS, "chunk-ms", 160, "audio chunk duration in milliseconds")
	cmd.MarkFlagRequired("audio")

	return cmd
}

func run(ctx context.Context, cfg dialog.Config, audioPath, outPath string, chunkMS int) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	done := make(chan struct{})
	client, err := dialog.Connect(ctx, cfg, func(m dialog.ServerMessage) {
		switch {
		case m.Err != nil:
			fmt.Fprintf(os.Stderr, "server error %d: %s\n", m.Err.Code, m.Err.Message)
		case m.Interrupted:
			fmt.Println("-- interrupted --")
		case m.InputTranscription != nil:
			fmt.Printf("you: %s\n", m.InputTranscription.Text)
		case m.OutputTranscription != nil && m.OutputTranscription.Text != "":
			fmt.Print(m.OutputTranscription.Text)
		case m.OutputTranscription != nil && m.OutputTranscription.Finished:
			fmt.Println()
		case len(m.Audio) > 0:
			out.Write(m.Audio)
		case m.Usage != nil:
			fmt.Printf("usage: %d tokens (%d cached)\n", m.Usage.TotalTokens, m.Usage.CachedTokens)
		case m.TurnComplete:
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintf(os.Stderr, "session %s (logid %s)\n", client.SessionID(), client.LogID())

	// 16 kHz mono s16le input: 32 bytes of PCM per millisecond.
	chunkSize := 32 * chunkMS
	ticker := time.NewTicker(time.Duration(chunkMS) * time.Millisecond)
	defer ticker.Stop()

	for off := 0; off < len(audio); off += chunkSize {
		end := off + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := client.SendAudio(ctx, audio[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Wait for the reply turn to finish, then wind the session down.
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := client.FinishSession(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "reply audio written to %s\n", outPath)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dialogctl %s (%s)\n", version, runtime.Version())
		},
	}
}
