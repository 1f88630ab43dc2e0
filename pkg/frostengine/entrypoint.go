package frostengine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/frostlock/frostlock/pkg/byteshuman"
	"github.com/frostlock/frostlock/pkg/snapstore"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/function61/gokit/systemdinstaller"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var basePathOverride = ""

// RegisterRootFlags wires the --base-path override onto the root command.
func RegisterRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&basePathOverride,
		"base-path",
		"",
		"Base path for Frostlock storage (default: $FROSTLOCK_BASE or ~/.frostlock)")
}

func basePath() (string, error) {
	if basePathOverride != "" {
		return basePathOverride, nil
	}

	if env := os.Getenv("FROSTLOCK_BASE"); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".frostlock"), nil
}

func loadEngine() (*Engine, error) {
	base, err := basePath()
	if err != nil {
		return nil, err
	}

	engine := New(base, logex.StandardLogger())
	if err := engine.Load(); err != nil {
		return nil, err
	}

	return engine, nil
}

func Entrypoints() []*cobra.Command {
	return []*cobra.Command{
		initEntrypoint(),
		statusEntrypoint(),
		snapshotEntrypoint(),
		restoreEntrypoint(),
		setDefaultEntrypoint(),
		thawEntrypoint(),
		freezeEntrypoint(),
		commitEntrypoint(),
		overlayEntrypoint(),
		installEntrypoint(),
	}
}

func initEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initializes the base storage root and the stock domains",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				base, err := basePath()
				if err != nil {
					return err
				}

				engine := New(base, logex.StandardLogger())
				if err := engine.Init(); err != nil {
					return err
				}

				fmt.Printf("initialized at %s\n\ndomains:\n", base)
				for _, domain := range engine.Domains.All() {
					fmt.Printf("  %-6s %s (%s)\n", domain.ID, domain.Path, domain.ResetPolicy)
				}

				return nil
			}())
		},
	}
}

func statusEntrypoint() *cobra.Command {
	porcelain := false

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows domains, snapshots and capabilities",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				status := engine.Status()

				if porcelain {
					return jsonfile.Marshal(os.Stdout, status)
				}

				printHumanStatus(status)

				return nil
			}())
		},
	}

	cmd.Flags().BoolVarP(&porcelain, "porcelain", "p", porcelain, "Machine-readable JSON output")

	return cmd
}

func printHumanStatus(status *Status) {
	stateLabel := "FROZEN"
	if !status.Frozen {
		stateLabel = "THAWED"
	}

	fmt.Printf("base path: %s\nstate:     %s\nplatform:  %s (overlay=%v hardlink=%v)\n\n",
		status.BasePath,
		stateLabel,
		status.Capabilities.Platform,
		status.Capabilities.OverlaySupported,
		status.Capabilities.HardlinkSupported)

	rows := lo.Map(status.Domains, func(domain DomainStatus, _ int) []string {
		exists := "yes"
		if !domain.Exists {
			exists = "MISSING"
		}

		overlay := ""
		if domain.OverlayActive {
			overlay = "overlay"
		}

		return []string{
			domain.ID,
			string(domain.Kind),
			string(domain.ResetPolicy),
			exists,
			byteshuman.Humanize(domain.DiskUsage),
			overlay,
		}
	})

	printTable([]string{"Domain", "Kind", "Policy", "Exists", "Usage", ""}, rows)

	fmt.Printf("\nsnapshots: %d", status.SnapshotCount)
	if status.Default != nil {
		fmt.Printf(", default: %s (%s)", status.Default.Name, status.Default.ID)
	}
	if status.Latest != nil {
		fmt.Printf(", latest: %s (%s)", status.Latest.Name, status.Latest.CreatedAt.Format(time.RFC822Z))
	}
	fmt.Println()

	for domainID, vc := range status.VersionControl {
		switch {
		case !vc.Initialized:
			fmt.Printf("version control %s: not initialized\n", domainID)
		case vc.Clean:
			fmt.Printf("version control %s: clean (%s)\n", domainID, vc.LastCommit)
		default:
			fmt.Printf("version control %s: has uncommitted changes\n", domainID)
		}
	}
}

func snapshotEntrypoint() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage snapshots",
	}

	description := ""

	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Captures the frozen domains into a new snapshot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				snapshot, err := engine.CreateSnapshot(args[0], description)
				if err != nil {
					return err
				}

				fmt.Printf("created %s (%s)\ndomains: %s\n",
					snapshot.Name,
					snapshot.ID,
					strings.Join(sortedKeys(snapshot.DomainHashes), ", "))

				return nil
			}())
		},
	}
	create.Flags().StringVarP(&description, "description", "d", description, "Snapshot description")

	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "Lists snapshots",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				defaultID := ""
				if def := engine.DefaultSnapshot(); def != nil {
					defaultID = def.ID
				}

				rows := [][]string{}
				for _, snapshot := range engine.Snapshots.List() {
					marker := ""
					if snapshot.ID == defaultID {
						marker = "default"
					}

					rows = append(rows, []string{
						snapshot.Name,
						snapshot.ID,
						snapshot.CreatedAt.Format(time.RFC822Z),
						strings.Join(sortedKeys(snapshot.DomainHashes), ","),
						marker,
					})
				}

				printTable([]string{"Name", "Id", "Created", "Domains", ""}, rows)

				return nil
			}())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [id | name]",
		Short: "Removes a snapshot and its captured content",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				return engine.Snapshots.Remove(args[0])
			}())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify [id | name]",
		Short: "Recomputes stored digests to detect corruption",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				snapshot, err := engine.Snapshots.Resolve(args[0])
				if err != nil {
					return err
				}

				if err := engine.Snapshots.Verify(snapshot); err != nil {
					return err
				}

				fmt.Printf("%s (%s): ok\n", snapshot.Name, snapshot.ID)

				return nil
			}())
		},
	})

	return cmd
}

func restoreEntrypoint() *cobra.Command {
	useDefault := false

	cmd := &cobra.Command{
		Use:   "restore [id | name]",
		Short: "Restores frozen domains to a snapshot's captured state",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				var results []snapstore.DomainRestoreResult

				switch {
				case useDefault:
					results, err = engine.RestoreDefault()
				case len(args) == 1:
					results, err = engine.Restore(args[0])
				default:
					return errors.New("give a snapshot id/name or --default")
				}

				if err != nil {
					return err
				}

				failed := []string{}

				for _, result := range results {
					if result.Err != nil {
						fmt.Printf("%s: FAILED (%v)\n", result.DomainID, result.Err)
						failed = append(failed, result.DomainID)
						continue
					}

					fmt.Printf("%s: restored (%s)\n", result.DomainID, result.Method)
				}

				if len(failed) > 0 {
					return fmt.Errorf("partial restore: failed domains: %s", strings.Join(failed, ", "))
				}

				return nil
			}())
		},
	}

	cmd.Flags().BoolVar(&useDefault, "default", useDefault, "Restore the default snapshot (boot entry point)")

	return cmd
}

func setDefaultEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default [id | name]",
		Short: "Sets the snapshot restored automatically at boot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				snapshot, err := engine.SetDefault(args[0])
				if err != nil {
					return err
				}

				fmt.Printf("default: %s (%s)\n", snapshot.Name, snapshot.ID)

				return nil
			}())
		},
	}
}

func thawEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "thaw",
		Short: "Suspends freezing: changes to frozen domains persist until the next freeze or restore",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				if err := engine.Thaw(); err != nil {
					return err
				}

				fmt.Println("thawed - run 'frostlock freeze' to re-enable")

				return nil
			}())
		},
	}
}

func freezeEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "freeze",
		Short: "Re-enables freezing after a thaw",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				if err := engine.Freeze(); err != nil {
					return err
				}

				fmt.Println("frozen")

				return nil
			}())
		},
	}
}

func commitEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "commit [message]",
		Short: "Commits pending changes in tracked domains",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				committed, err := engine.CommitConfig(args[0])
				if err != nil {
					return err
				}

				if committed {
					fmt.Println("committed")
				} else {
					fmt.Println("nothing to commit")
				}

				return nil
			}())
		},
	}
}

func overlayEntrypoint() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Manage copy-on-write overlay mounts (Linux, requires root)",
	}

	snapshotRef := ""

	mount := &cobra.Command{
		Use:   "mount [domain]",
		Short: "Mounts a snapshot as the read-only base under a frozen domain",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				return engine.MountOverlay(args[0], snapshotRef)
			}())
		},
	}
	mount.Flags().StringVarP(&snapshotRef, "snapshot", "s", snapshotRef, "Snapshot id/name to use as the lower layer")
	_ = mount.MarkFlagRequired("snapshot")

	clean := false

	unmount := &cobra.Command{
		Use:   "unmount [domain]",
		Short: "Unmounts a domain's overlay",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(func() error {
				engine, err := loadEngine()
				if err != nil {
					return err
				}

				return engine.UnmountOverlay(args[0], clean)
			}())
		},
	}
	unmount.Flags().BoolVar(&clean, "clean", clean, "Also purge the writable scratch layer")

	cmd.AddCommand(mount)
	cmd.AddCommand(unmount)

	return cmd
}

func installEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Installs a systemd unit that restores the default snapshot at boot",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			serviceFile := systemdinstaller.SystemdServiceFile(
				"frostlock",
				"Frostlock restore-default at boot",
				systemdinstaller.Args("restore", "--default"),
				systemdinstaller.Docs("https://github.com/frostlock/frostlock"))

			osutil.ExitIfError(systemdinstaller.Install(serviceFile))

			fmt.Println(systemdinstaller.GetHints(serviceFile))
		},
	}
}

func printTable(headers []string, rows [][]string) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		for _, row := range rows {
			fmt.Println(strings.Join(row, "\t"))
		}

		return
	}

	tblBuilder := tablewriter.NewWriter(os.Stdout)
	tblBuilder.SetAutoFormatHeaders(false)
	tblBuilder.SetBorder(false)
	tblBuilder.SetHeader(headers)

	for _, row := range rows {
		tblBuilder.Append(row)
	}

	tblBuilder.Render()
}

func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)

	return keys
}
