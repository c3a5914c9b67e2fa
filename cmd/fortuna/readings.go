package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fortuna/internal/app"
	"github.com/MrWong99/fortuna/internal/oracle"
	"github.com/MrWong99/fortuna/pkg/audio/speaker"
)

// userFlags binds the birth information of one person to a command.
type userFlags struct {
	info oracle.UserInfo
}

func (u *userFlags) register(cmd *cobra.Command, prefix, who string) {
	f := cmd.Flags()
	f.StringVar(&u.info.Name, prefix+"name", "", who+" name")
	f.StringVar(&u.info.BirthDate, prefix+"birth-date", "", who+" birth date (YYYY-MM-DD)")
	f.StringVar(&u.info.BirthTime, prefix+"birth-time", "", who+" birth time (HH:MM, optional)")
	f.StringVar(&u.info.BirthPlace, prefix+"birth-place", "", who+" birth place")
	f.StringVar(&u.info.Gender, prefix+"gender", "", who+" gender (optional)")
	for _, req := range []string{"name", "birth-date", "birth-place"} {
		_ = cmd.MarkFlagRequired(prefix + req)
	}
}

// withApp builds the application for a one-shot command and shuts it down
// afterwards.
func (c *cli) withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := c.build(nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()
	return fn(ctx, a)
}

func (c *cli) fortuneCmd() *cobra.Command {
	var (
		user   userFlags
		date   string
		asJSON bool
		speak  bool
	)
	cmd := &cobra.Command{
		Use:   "fortune",
		Short: "Cast today's bounty fortune",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				date = time.Now().Format(time.DateOnly)
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Oracle().DailyFortune(ctx, user.info, date)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(c, res)
				}
				renderFortune(c.out, user.info.Name, date, res)
				if speak {
					return c.sayAloud(ctx, a, res.Insight)
				}
				return nil
			})
		},
	}
	user.register(cmd, "", "your")
	cmd.Flags().StringVar(&date, "date", "", "day of the reading (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw reading as JSON")
	cmd.Flags().BoolVar(&speak, "speak", false, "have the master read the insight aloud")
	return cmd
}

func (c *cli) matchCmd() *cobra.Command {
	var (
		first, second userFlags
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Read the bond between two crewmates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Oracle().Compatibility(ctx, first.info, second.info)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(c, res)
				}
				renderCompatibility(c.out, first.info.Name, second.info.Name, res)
				return nil
			})
		},
	}
	first.register(cmd, "", "your")
	second.register(cmd, "partner-", "partner's")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw reading as JSON")
	return cmd
}

func (c *cli) speakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "speak TEXT...",
		Short: "Have the master say something through the speaker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return c.sayAloud(ctx, a, strings.Join(args, " "))
			})
		},
	}
}

func (c *cli) sayAloud(ctx context.Context, a *app.App, text string) error {
	sp, err := a.Oracle().Speak(ctx, text)
	if err != nil {
		return err
	}
	return speaker.PlayPCM(ctx, sp.PCM, sp.SampleRate)
}

func (c *cli) posterCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "poster PROMPT...",
		Short: "Paint a wanted poster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				url, err := a.Oracle().WantedPoster(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Fprintln(c.out, url)
					return nil
				}
				img, err := decodeDataURL(url)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, img, 0o644); err != nil {
					return fmt.Errorf("write poster: %w", err)
				}
				fmt.Fprintf(c.out, "Poster written to %s (%d bytes)\n", out, len(img))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the image to this file instead of printing the data URL")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the oracle can reach its model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st := a.Oracle().Status(ctx)
				fmt.Fprintln(c.out, st.Message)
				if !st.OK {
					return errSilent
				}
				return nil
			})
		},
	}
}

func writeJSON(c *cli, v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
