package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bitfsorg/libbabel-go/catalog"
	"github.com/bitfsorg/libbabel-go/config"
	"github.com/bitfsorg/libbabel-go/metadata"
	"github.com/bitfsorg/libbabel-go/transfer"
)

func runInit(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	dataDir := fs.String("datadir", config.DefaultDataDir(), "data directory to initialize")
	force := fs.Bool("force", false, "overwrite an existing configuration file")
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		return helpOK(err)
	}

	path := config.ConfigPath(*dataDir)
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg := config.DefaultConfig()
	cfg.DataDir = *dataDir
	if err := config.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", path)
	return nil
}

func runKeygen(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	privPath := fs.String("private", "private.pem", "private key output path")
	pubPath := fs.String("public", "public.pem", "public key output path")
	bits := fs.Int("bits", metadata.DefaultKeyBits, "RSA modulus size")
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		return helpOK(err)
	}

	key, err := metadata.GenerateKey(*bits)
	if err != nil {
		return err
	}
	if err := metadata.WriteKeyPair(*privPath, *pubPath, key, os.Getenv(passphraseEnv)); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s and %s\n", *privPath, *pubPath)
	return nil
}

func runUpload(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("upload", pflag.ContinueOnError)
	metaPath := fs.String("metadata", "", "metadata output path (single file only; default <datadir>/metadata/<file>.meta)")
	privKey := fs.String("privkey", "", "PEM RSA private key used to sign the metadata")
	jobs := fs.Int("jobs", 2, "files uploaded concurrently when several are given")
	e.addCommonFlags(fs)
	if err := e.parse(fs, "upload <file>... [flags]", args); err != nil {
		return helpOK(err)
	}
	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return errors.New("upload: no file given")
	}
	if len(files) > 1 && *metaPath != "" {
		return errors.New("upload: --metadata applies to a single file")
	}

	key, err := loadPrivateKey(*privKey, e.cfg.PrivKey)
	if err != nil {
		return err
	}
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	cat, err := e.catalog()
	if err != nil {
		return err
	}

	var results []*transfer.FileResult
	var uploadErr error
	if len(files) == 1 {
		out := *metaPath
		if out == "" {
			out = filepath.Join(e.cfg.MetadataDir(), filepath.Base(files[0])+".meta")
		}
		res, err := o.UploadFile(ctx, files[0], transfer.UploadOptions{MetadataPath: out, PrivateKey: key})
		results, uploadErr = []*transfer.FileResult{res}, err
	} else {
		results, uploadErr = o.UploadMany(ctx, files, e.cfg.MetadataDir(), *jobs, key)
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		entry := catalog.NewEntry(res.Record, res.MetadataPath, time.Now())
		if err := cat.Put(entry); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s  %s  %d chunks  %s\n", entry.ID, res.Record.Filename, res.Record.ChunkCount, res.MetadataPath)
	}
	return uploadErr
}

func runDownload(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
	output := fs.StringP("output", "o", "", "output file path (required)")
	pubKey := fs.String("pubkey", "", "PEM RSA public key; the metadata signature must verify")
	strict := fs.Bool("strict", false, "fail on the first chunk digest mismatch")
	e.addCommonFlags(fs)
	if err := e.parse(fs, "download <metadata> --output <file> [flags]", args); err != nil {
		return helpOK(err)
	}
	if fs.NArg() != 1 || *output == "" {
		fs.Usage()
		return errors.New("download: need one metadata path and --output")
	}

	pub, err := loadPublicKey(*pubKey, e.cfg.PubKey)
	if err != nil {
		return err
	}
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	rec, err := o.DownloadFile(ctx, fs.Arg(0), *output, transfer.DownloadOptions{
		Strict:    *strict || e.cfg.Strict,
		PublicKey: pub,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "restored %s (%d bytes) to %s\n", rec.Filename, rec.OriginalSize, *output)
	return nil
}

func runVerify(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("verify-metadata", pflag.ContinueOnError)
	pubKey := fs.String("pubkey", "", "PEM RSA public key (required)")
	strict := fs.Bool("strict", false, "treat a missing chunk digest as an error")
	e.addCommonFlags(fs)
	if err := e.parse(fs, "verify-metadata <metadata> --pubkey <key> [flags]", args); err != nil {
		return helpOK(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("verify-metadata: need one metadata path")
	}

	pub, err := loadPublicKey(*pubKey, e.cfg.PubKey)
	if err != nil {
		return err
	}
	if pub == nil {
		return metadata.ErrNoPublicKey
	}
	rec, err := metadata.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	warnings, err := metadata.VerifyOffline(rec, pub, *strict || e.cfg.Strict)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		e.log.Warn(w, "metadata", fs.Arg(0))
	}
	fmt.Fprintf(e.stdout, "%s: signature valid, %d chunks\n", fs.Arg(0), rec.ChunkCount)
	return nil
}

func runInfo(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("info", pflag.ContinueOnError)
	e.addCommonFlags(fs)
	if err := e.parse(fs, "info <metadata>", args); err != nil {
		return helpOK(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("info: need one metadata path")
	}
	rec, err := metadata.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	return metadata.WriteSummary(e.stdout, rec)
}

func runEstimate(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("estimate", pflag.ContinueOnError)
	e.addCommonFlags(fs)
	if err := e.parse(fs, "estimate <file>", args); err != nil {
		return helpOK(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("estimate: need one file")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	o, err := e.orchestrator()
	if err != nil {
		return err
	}
	est, err := o.Estimate(data)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "original size\t%d bytes\n", est.OriginalSize)
	fmt.Fprintf(tw, "compressed size\t%d bytes\n", est.CompressedSize)
	fmt.Fprintf(tw, "chunk size\t%d bytes\n", est.ChunkSize)
	fmt.Fprintf(tw, "pages\t%d\n", est.ChunkCount)
	fmt.Fprintf(tw, "encoded symbols\t%d\n", est.EncodedSize)
	fmt.Fprintf(tw, "upload time\t~%s\n", est.UploadTime)
	fmt.Fprintf(tw, "download time\t~%s\n", est.DownloadTime)
	fmt.Fprintf(tw, "address data\t~%d bytes\n", est.MetadataSize)
	return tw.Flush()
}

func runList(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	e.addCommonFlags(fs)
	if err := e.parse(fs, "list", args); err != nil {
		return helpOK(err)
	}
	cat, err := e.catalog()
	if err != nil {
		return err
	}
	entries, err := cat.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(e.stdout, "no uploads")
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSIZE\tCHUNKS\tSIGNED\tUPLOADED")
	for _, en := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\n",
			en.ID, en.Filename, en.OriginalSize, en.ChunkCount, en.Signed,
			en.UploadedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runDelete(_ context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	e.addCommonFlags(fs)
	if err := e.parse(fs, "delete <id>", args); err != nil {
		return helpOK(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("delete: need one catalog id")
	}
	cat, err := e.catalog()
	if err != nil {
		return err
	}
	entry, err := cat.Delete(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "deleted %s (%s)\n", entry.ID, entry.Filename)
	return nil
}

// helpOK turns a --help request into a clean exit.
func helpOK(err error) error {
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

// passphraseEnv names the variable holding the private key passphrase.
const passphraseEnv = "BABEL_KEY_PASSPHRASE"

// loadPrivateKey loads the key named by the flag, falling back to the
// configured path. No path means no signing.
func loadPrivateKey(flagPath, cfgPath string) (*rsa.PrivateKey, error) {
	path := flagPath
	if path == "" {
		path = cfgPath
	}
	if path == "" {
		return nil, nil
	}
	return metadata.LoadEncryptedPrivateKey(path, os.Getenv(passphraseEnv))
}

func loadPublicKey(flagPath, cfgPath string) (*rsa.PublicKey, error) {
	path := flagPath
	if path == "" {
		path = cfgPath
	}
	if path == "" {
		return nil, nil
	}
	return metadata.LoadPublicKey(path)
}

// nonZero maps a configured zero delay to the negative value the
// orchestrator reads as "no delay".
func nonZero(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
