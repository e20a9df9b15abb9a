package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/openmined/sitedeploy/internal/artifacts"
	"github.com/openmined/sitedeploy/internal/blob"
	"github.com/openmined/sitedeploy/internal/config"
	"github.com/openmined/sitedeploy/internal/notify"
	"github.com/openmined/sitedeploy/internal/sync"
	"github.com/openmined/sitedeploy/internal/utils"
	"github.com/spf13/cobra"
)

const (
	lockFileName  = "sitedeploy.lock"
	notifyTimeout = 10 * time.Second
)

var errDeployLocked = errors.New("another deploy holds the lock")

type deployOptions struct {
	bucket    string
	userAgent string
	yes       bool
	dryRun    bool
}

func bindDeployFlags(cmd *cobra.Command, opts *deployOptions) {
	cmd.Flags().SortFlags = false
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().StringVarP(&opts.bucket, "bucket", "b", "", "bucket name, overrides the configured one")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "text appended to the S3 user agent")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "plan the sync without changing the bucket")
}

func (a *app) deployCmd() *cobra.Command {
	opts := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the site. Creates the bucket if it does not exist, otherwise updates it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd, opts)
		},
	}
	bindDeployFlags(cmd, opts)
	return cmd
}

// loadConfig resolves config from file, SITEDEPLOY_* env and flags, in increasing priority.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	v := config.New()
	for key, value := range overrides {
		v.Set(key, value)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		v.Set("verbose", true)
	}

	path, _ := cmd.Flags().GetString("config")
	return config.Load(v, path)
}

func (a *app) runDeploy(cmd *cobra.Command, opts *deployOptions) error {
	overrides := map[string]any{}
	if opts.bucket != "" {
		overrides["bucketName"] = opts.bucket
	}
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Verbose {
		a.level.Set(slog.LevelDebug)
	}
	cmd.SilenceUsage = true

	runID := uuid.NewString()
	slog.SetDefault(slog.Default().With("run", runID))
	slog.Debug("deploy", "config", cfg.Path, "bucket", cfg.BucketName, "dryRun", opts.dryRun)

	unlock, err := lockArtifacts(cfg.ArtifactsDir)
	if err != nil {
		return err
	}
	defer unlock()

	set, err := artifacts.Load(cfg.ArtifactsDir)
	if err != nil {
		return &config.ValidationError{Field: "artifactsDir", Msg: err.Error()}
	}

	ctx := cmd.Context()
	blobCfg := blob.WithDeployConfig(cfg, opts.userAgent)
	store, err := blob.NewBlobClientWithS3Config(ctx, blobCfg)
	if err != nil {
		return err
	}

	d := &deployer{app: a, cfg: cfg, opts: opts, set: set, store: store}
	result, err := d.deploy(ctx)
	if errors.Is(err, errAborted) {
		return err
	}

	if cfg.NotifyTopicArn != "" && !opts.dryRun {
		a.notify(ctx, blobCfg, cfg.NotifyTopicArn, &notify.DeployReport{
			RunID:      runID,
			Bucket:     cfg.BucketName,
			Prefix:     cfg.BucketPrefix,
			WebsiteURL: d.websiteURL(),
			Result:     result,
			Err:        err,
			Finished:   time.Now(),
		})
	}
	return err
}

// lockArtifacts serializes deploys that share an artifacts dir on this machine.
func lockArtifacts(dir string) (func(), error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("artifacts dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("deploy lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errDeployLocked, lock.Path())
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("deploy lock release failed", "path", lock.Path(), "error", err)
		}
	}, nil
}

type deployer struct {
	app   *app
	cfg   *config.Config
	opts  *deployOptions
	set   *artifacts.Set
	store *blob.BlobClient
	state *blob.BucketState
}

func (d *deployer) deploy(ctx context.Context) (*sync.SyncResult, error) {
	out := d.app.out

	fmt.Fprintln(out, gray.Render("Retrieving bucket info..."))
	state, err := d.store.BucketInfo(ctx)
	if err != nil {
		return nil, err
	}
	d.state = state
	d.store = d.store.WithRegion(state.Region)

	if err := d.confirm(); err != nil {
		return nil, err
	}

	if d.opts.dryRun {
		fmt.Fprintln(out, yellow.Render("Dry run, the bucket will not be changed."))
	} else {
		fmt.Fprintln(out, gray.Render("Configuring bucket..."))
		if err := d.store.Provision(ctx, blob.ProvisionOptions{
			Exists:         state.Exists,
			Region:         state.Region,
			WebsiteHosting: d.cfg.EnableS3StaticWebsiteHosting,
			PublicRead:     d.cfg.ACL == "public-read",
			RoutingRules:   d.set.RoutingRules,
		}); err != nil {
			return nil, err
		}
	}

	syncOpts := sync.OptionsFromConfig(d.cfg, d.set)
	syncOpts.DryRun = d.opts.dryRun
	engine, err := sync.NewSyncEngine(d.store, syncOpts)
	if err != nil {
		return nil, err
	}

	var result *sync.SyncResult
	if interactive(d.app.in, out) {
		result, err = runWithSpinner(ctx, engine, d.app.in, out)
	} else {
		result, err = runPlain(ctx, engine)
	}
	if err != nil {
		fmt.Fprintln(out, red.Render("✗ Failed."))
		return result, err
	}

	d.printSummary(result)
	return result, nil
}

// confirm asks before touching the bucket unless --yes was passed or this runs in CI.
func (d *deployer) confirm() error {
	if d.opts.yes || isCI() {
		return nil
	}
	if !interactive(d.app.in, d.app.out) {
		return &usageError{err: errors.New("confirmation required, pass --yes to deploy non-interactively")}
	}

	ok, err := confirmDeploy(d.app.in, d.app.out, confirmSummary{
		Bucket: d.cfg.BucketName,
		Region: d.state.Region,
		Create: !d.state.Exists,
	})
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

func (d *deployer) websiteURL() string {
	if d.state == nil || !d.cfg.EnableS3StaticWebsiteHosting {
		return ""
	}
	return blob.WebsiteURL(d.cfg.BucketName, d.state.Region)
}

func (d *deployer) printSummary(result *sync.SyncResult) {
	out := d.app.out

	verb := "Synced."
	if result.DryRun {
		verb = "Dry run complete."
	}
	fmt.Fprintf(out, "%s %s %s\n",
		green.Render("✓ "+verb),
		result.String(),
		gray.Render(fmt.Sprintf("(%s in %s)", humanize.IBytes(uint64(result.BytesUploaded)), result.Duration.Round(time.Millisecond))),
	)
	if result.DryRun {
		return
	}

	if url := d.websiteURL(); url != "" {
		fmt.Fprintf(out, "Your website is online at: %s\n", blue.Underline(true).Render(url))
	} else {
		fmt.Fprintf(out, "Your website has now been published to: %s\n", cyan.Render(d.cfg.BucketName))
	}
}

// notify reports the outcome. Failing to notify never fails the deploy.
func (a *app) notify(ctx context.Context, blobCfg *blob.S3BlobConfig, topicArn string, report *notify.DeployReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	awsCfg, err := blob.LoadAWSConfig(ctx, blobCfg)
	if err != nil {
		slog.Warn("notify skipped", "error", err)
		return
	}
	notifier, err := notify.NewSNSNotifier(awsCfg, topicArn)
	if err != nil {
		slog.Warn("notify skipped", "error", err)
		return
	}
	if err := notifier.NotifyDeploy(ctx, report); err != nil {
		slog.Warn("notify failed", "error", err)
	}
}
