package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adarsh-shaw/MedScriptAI/internal/ai"
	"github.com/Adarsh-shaw/MedScriptAI/internal/qr"
	"github.com/Adarsh-shaw/MedScriptAI/internal/records"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/config"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/storage"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// app holds what every subcommand needs once configuration is loaded
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	backend storage.Backend
	store   *records.Store
	codec   *qr.Codec
	out     io.Writer
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
		a          = &app{}
	)

	root := &cobra.Command{
		Use:           "medscript",
		Short:         "Administer MedScript users and prescriptions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.open(cmd.Context(), configPath, verbose)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.backend != nil {
				return a.backend.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newUsersCmd(a),
		newPrescriptionsCmd(a),
		newVerifyCmd(a),
		newDispenseCmd(a),
		newScanCmd(a),
		newQRCmd(a),
		newInteractionsCmd(a),
		newDigitizeCmd(a),
		newStatsCmd(a),
		newStockCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context, configPath string, verbose bool) error {
	var err error
	if configPath != "" {
		a.cfg, err = config.LoadFile(configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	a.log = logger.Discard()
	if verbose {
		a.log = logger.NewWithOutput(a.cfg.LogLevel, os.Stderr)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	a.backend, err = storage.Open(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}

	var opts []records.Option
	if !a.cfg.Storage.SeedUsers {
		opts = append(opts, records.WithSeedUsers(nil))
	}
	a.store = records.NewStore(storage.NewInstrumented(a.backend, a.log, nil), a.log, opts...)
	a.codec = qr.NewCodec(a.cfg.QR)
	return nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) gateway(ctx context.Context) (*ai.Gateway, error) {
	model, err := ai.NewGeminiModel(ctx, a.cfg.AI.APIKey, a.cfg.AI.Model)
	if err != nil {
		return nil, err
	}
	return ai.NewGateway(model, a.log, ai.WithTimeout(a.cfg.AI.RequestTimeout())), nil
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage user accounts"}

	var role, search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.store.SearchUsers(cmd.Context(), search)
			if err != nil {
				return err
			}
			if role != "" {
				r, err := types.ParseUserRole(role)
				if err != nil {
					return err
				}
				filtered := users[:0]
				for _, u := range users {
					if u.Role == r {
						filtered = append(filtered, u)
					}
				}
				users = filtered
			}
			return a.print(users)
		},
	}
	list.Flags().StringVar(&role, "role", "", "only list users with this role")
	list.Flags().StringVarP(&search, "search", "s", "", "only list users whose email or name contains this text")

	var req types.CreateUserRequest
	var addRole string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := types.ParseUserRole(addRole)
			if err != nil {
				return err
			}
			req.Role = r
			user, err := a.store.CreateUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(user)
		},
	}
	add.Flags().StringVar(&req.Name, "name", "", "display name")
	add.Flags().StringVar(&req.Email, "email", "", "email address")
	add.Flags().StringVar(&addRole, "role", string(types.RolePatient), "ADMIN, DOCTOR, PATIENT or PHARMACIST")
	add.Flags().StringVar(&req.Specialty, "specialty", "", "doctor specialty")
	add.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.DeleteUser(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func newPrescriptionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "prescriptions", Short: "Inspect prescriptions"}

	var patient, doctor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List prescriptions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				list []types.Prescription
				err  error
			)
			switch {
			case patient != "":
				list, err = a.store.GetPatientHistory(cmd.Context(), patient)
			case doctor != "":
				list, err = a.store.GetDoctorRecords(cmd.Context(), doctor)
			default:
				list, err = a.store.ListPrescriptions(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.print(list)
		},
	}
	list.Flags().StringVar(&patient, "patient", "", "patient email")
	list.Flags().StringVar(&doctor, "doctor", "", "doctor email")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one prescription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.GetPrescription(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("prescription %s not found", args[0])
			}
			return a.print(p)
		},
	}

	var output string
	pdf := &cobra.Command{
		Use:   "pdf ID",
		Short: "Write a printable prescription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.store.GetPrescription(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("prescription %s not found", args[0])
			}
			doc, err := records.RenderPDF(*p, a.codec)
			if err != nil {
				return err
			}
			if output == "" {
				output = p.ID + ".pdf"
			}
			return os.WriteFile(output, doc, 0o644)
		},
	}
	pdf.Flags().StringVarP(&output, "output", "o", "", "output file")

	cmd.AddCommand(list, show, pdf)
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Look up a prescription by verification token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := qr.NewVerifier(a.store, nil, a.log, nil)
			p, err := v.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no prescription carries token %s", args[0])
			}
			return a.print(p)
		},
	}
}

func newDispenseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dispense TOKEN",
		Short: "Verify a token and mark its prescription dispensed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := qr.NewVerifier(a.store, nil, a.log, nil)
			p, err := v.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no prescription carries token %s", args[0])
			}
			out, err := v.Dispense(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(out)
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "scan IMAGE|FRAME_DIR",
		Short: "Read a QR code from an image file or a directory of camera frames and verify it",
		Long: "Given a file, decodes it once. Given a directory, watches it for frames written\n" +
			"by a capture process until a code decodes, the timeout passes or Ctrl-C is pressed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}

			scanner := qr.NewScanner(a.codec, a.cfg.QR.ScanInterval(), a.log, nil)
			v := qr.NewVerifier(a.store, scanner, a.log, nil)

			var p *types.Prescription
			if info.IsDir() {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				p, err = v.OpenCamera(ctx, qr.NewDirCamera(args[0]))
				if err != nil {
					return err
				}
			} else {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				token, ok := a.codec.DecodeBytes(data)
				if !ok {
					return errors.New("no QR code found in image")
				}
				if p, err = v.Verify(cmd.Context(), token); err != nil {
					return err
				}
			}
			return a.print(map[string]interface{}{"state": v.State(), "prescription": p})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up watching a frame directory after this long")
	return cmd
}

func newQRCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "qr TOKEN",
		Short: "Render a verification token as a PNG, or print its image URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				_, err := fmt.Fprintln(a.out, a.codec.ImageURL(args[0], 0))
				return err
			}
			png, err := a.codec.RenderPNG(args[0])
			if err != nil {
				return err
			}
			return os.WriteFile(output, png, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write PNG to this file")
	return cmd
}

func newInteractionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "interactions MEDICATION...",
		Short: "Check drug interactions between medications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			meds := make([]types.Medication, 0, len(args))
			for _, name := range args {
				meds = append(meds, types.Medication{Name: strings.TrimSpace(name)})
			}
			interactions, outcome := gw.CheckInteractions(cmd.Context(), meds)
			return a.print(map[string]interface{}{"outcome": outcome, "interactions": interactions})
		},
	}
}

func newDigitizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "digitize IMAGE",
		Short: "Extract medications from a photo of a handwritten prescription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			meds, outcome := gw.DigitizePrescriptionImage(cmd.Context(), data)
			if outcome == ai.OutcomeFailed {
				return errors.New("could not digitize prescription image")
			}
			return a.print(meds)
		},
	}
}

// doctorSummary is the doctor dashboard: counters plus the latest encounters
type doctorSummary struct {
	records.DoctorStats
	Recent []records.Interaction `json:"recent"`
}

func newStatsCmd(a *app) *cobra.Command {
	var doctorID, patient string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the admin overview, a doctor's counters or a patient's reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case doctorID != "":
				stats, err := a.store.DoctorStats(cmd.Context(), doctorID)
				if err != nil {
					return err
				}
				recent, err := a.store.RecentInteractions(cmd.Context(), doctorID)
				if err != nil {
					return err
				}
				return a.print(doctorSummary{DoctorStats: stats, Recent: recent})
			case patient != "":
				schedule, err := a.store.PatientReminders(cmd.Context(), patient)
				if err != nil {
					return err
				}
				return a.print(schedule)
			}
			overview, err := a.store.AdminOverview(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(overview)
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	cmd.Flags().StringVar(&patient, "reminders", "", "patient email")
	return cmd
}

func newStockCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Inspect and adjust pharmacy stock"}

	var lowOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List stock items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				items []types.InventoryItem
				err   error
			)
			if lowOnly {
				items, err = a.store.LowStock(cmd.Context())
			} else {
				items, err = a.store.ListInventory(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.print(items)
		},
	}
	list.Flags().BoolVar(&lowOnly, "low", false, "only items at or below their threshold")

	adjust := &cobra.Command{
		Use:     "adjust ID DELTA",
		Short:   "Add DELTA units to an item; negative values remove stock",
		Example: "  medscript stock adjust 2 25\n  medscript stock adjust -- 1 -10",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil || delta == 0 {
				return fmt.Errorf("invalid delta %q", args[1])
			}
			item, err := a.store.AdjustStock(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("no stock item %q", args[0])
			}
			return a.print(item)
		},
	}

	cmd.AddCommand(list, adjust)
	return cmd
}
