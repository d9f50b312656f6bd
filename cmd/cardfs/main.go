// Command cardfs is a shell for inspecting and editing a card image.
//
// It mounts the engine selected by the configuration and exposes one
// filesystem operation per invocation:
//
//	cardfs [flags] ls [path]
//	cardfs [flags] cat <path>
//	cardfs [flags] write <path> <text>
//	cardfs [flags] append <path> <text>
//	cardfs [flags] rm <path>
//	cardfs [flags] mkdir <path>
//	cardfs [flags] rmdir <path>
//	cardfs [flags] mv <old> <new>
//	cardfs [flags] cp <src> <dst>
//	cardfs [flags] info [path]
//	cardfs [flags] format [fat12|fat16|fat32|exfat]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/cardkit/cardfs/internal/logger"
	"github.com/cardkit/cardfs/pkg/config"
	"github.com/cardkit/cardfs/pkg/sdcard"
	"github.com/cardkit/cardfs/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// A .env file in the working directory may carry CARDFS_* overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardfs: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardfs: %v\n", err)
		os.Exit(1)
	}

	eng, err := config.NewEngine(&cfg.Engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardfs: %v\n", err)
		os.Exit(1)
	}

	card := sdcard.New(eng, &transport.SimBus{}, sdcard.Options{
		Bus:             cfg.Bus,
		MountAttempts:   cfg.Mount.Attempts,
		MountRetryDelay: cfg.Mount.RetryDelay,
		SettleDelay:     cfg.Mount.SettleDelay,
		Logger:          log,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if res := card.Initialize(ctx); res.IsError() {
		fmt.Fprintf(os.Stderr, "cardfs: %s\n", res.Err().Error())
		os.Exit(1)
	}
	defer card.Close()

	if res := run(ctx, card, flag.Args()); res.IsError() {
		fmt.Fprintf(os.Stderr, "cardfs: %s: %s\n", res.Kind(), res.Err().Error())
		os.Exit(1)
	}
}

// run dispatches one subcommand against the mounted card.
func run(ctx context.Context, card *sdcard.Card, args []string) sdcard.Result[sdcard.Unit] {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "ls":
		path := ""
		if len(rest) > 0 {
			path = rest[0]
		}
		return cmdList(ctx, card, path)

	case "cat":
		if len(rest) != 1 {
			return usage("cat <path>")
		}
		res := card.ReadFile(ctx, rest[0])
		if res.IsError() {
			return sdcard.FailErr[sdcard.Unit](res.Err())
		}
		os.Stdout.Write(res.Value())
		return sdcard.OkUnit()

	case "write", "append":
		if len(rest) != 2 {
			return usage(cmd + " <path> <text>")
		}
		return card.WriteTextFile(ctx, rest[0], rest[1], cmd == "append")

	case "rm":
		if len(rest) != 1 {
			return usage("rm <path>")
		}
		return card.DeleteFile(ctx, rest[0])

	case "mkdir":
		if len(rest) != 1 {
			return usage("mkdir <path>")
		}
		return card.CreateDirectory(ctx, rest[0])

	case "rmdir":
		if len(rest) != 1 {
			return usage("rmdir <path>")
		}
		return card.RemoveDirectory(ctx, rest[0])

	case "mv":
		if len(rest) != 2 {
			return usage("mv <old> <new>")
		}
		return card.Rename(ctx, rest[0], rest[1])

	case "cp":
		if len(rest) != 2 {
			return usage("cp <src> <dst>")
		}
		return card.CopyFile(ctx, rest[0], rest[1])

	case "info":
		if len(rest) > 0 {
			return cmdFileInfo(ctx, card, rest[0])
		}
		return cmdCardInfo(ctx, card)

	case "format":
		kind := "exfat"
		if len(rest) > 0 {
			kind = rest[0]
		}
		return card.Format(ctx, kind)

	default:
		return sdcard.Fail[sdcard.Unit](sdcard.KindInvalidParameter,
			"unknown command: "+cmd)
	}
}

func usage(msg string) sdcard.Result[sdcard.Unit] {
	return sdcard.Fail[sdcard.Unit](sdcard.KindInvalidParameter, "usage: cardfs "+msg)
}

func cmdList(ctx context.Context, card *sdcard.Card, path string) sdcard.Result[sdcard.Unit] {
	res := card.ListDirectory(ctx, path)
	if res.IsError() {
		return sdcard.FailErr[sdcard.Unit](res.Err())
	}

	for _, entry := range res.Value() {
		if entry.IsDirectory {
			fmt.Printf("%10s  %s/\n", "-", entry.Name)
			continue
		}
		fmt.Printf("%10s  %s\n", humanize.IBytes(entry.Size), entry.Name)
	}
	return sdcard.OkUnit()
}

func cmdFileInfo(ctx context.Context, card *sdcard.Card, path string) sdcard.Result[sdcard.Unit] {
	res := card.GetFileInfo(ctx, path)
	if res.IsError() {
		return sdcard.FailErr[sdcard.Unit](res.Err())
	}

	entry := res.Value()
	kind := "file"
	if entry.IsDirectory {
		kind = "directory"
	}
	fmt.Printf("%s\t%s\t%s\n", entry.FullPath, kind, humanize.IBytes(entry.Size))
	return sdcard.OkUnit()
}

func cmdCardInfo(ctx context.Context, card *sdcard.Card) sdcard.Result[sdcard.Unit] {
	res := card.Capacity(ctx)
	if res.IsError() {
		return sdcard.FailErr[sdcard.Unit](res.Err())
	}

	fmt.Printf("filesystem: %s\n", card.FilesystemType())
	fmt.Printf("capacity:   %s\n", res.Value())
	return sdcard.OkUnit()
}
