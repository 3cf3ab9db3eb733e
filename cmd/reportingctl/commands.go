package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/config"
	"github.com/cankoe/reporting-scheduler/internal/events"
	"github.com/cankoe/reporting-scheduler/internal/helpers"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
)

const commandTimeout = 30 * time.Second

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ping the configured store and Redis",
	RunE:  checkRun,
}

var seedAnchorCmd = &cobra.Command{
	Use:   "seed-anchor",
	Short: "Create the template contract metrics are recorded against",
	RunE:  seedAnchorRun,
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List schedules that are due now",
	RunE:  dueRun,
}

var (
	publishPayload string
	publishWrapSNS bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <event_type>",
	Short: "Send a contract event to the configured queue",
	Args:  cobra.ExactArgs(1),
	RunE:  publishRun,
}

func init() {
	publishCmd.Flags().StringVar(&publishPayload, "payload", "{}", "JSON object sent as the event payload")
	publishCmd.Flags().BoolVar(&publishWrapSNS, "sns", false, "wrap the envelope in an SNS notification")
}

func components() (*helpers.AppComponents, error) {
	return helpers.Initialize("reportingctl", cfgFile, nil)
}

func checkRun(cmd *cobra.Command, args []string) error {
	c, err := components()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	defer c.CloseAll(ctx)

	if err := c.Store.Ping(ctx); err != nil {
		return fmt.Errorf("%s store unreachable: %w", c.Config.Storage.Driver, err)
	}
	fmt.Printf("%s store connected successfully!\n", c.Config.Storage.Driver)

	client, err := c.Redis()
	if err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	fmt.Println("Redis connected successfully!")
	return nil
}

func seedAnchorRun(cmd *cobra.Command, args []string) error {
	c, err := components()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	defer c.CloseAll(ctx)

	name := c.Config.Events.AnchorTemplate
	existing, err := c.Store.Templates().FindByName(ctx, name)
	if err == nil {
		fmt.Printf("Template %q already exists (%s)\n", name, existing.ID)
		return nil
	}
	if !apperr.IsNotFound(err) {
		return err
	}

	now := time.Now().UTC()
	tmpl := &models.Template{
		Name:          name,
		Type:          "contracts",
		Description:   "Metrics derived from contract signing events",
		ExportFormats: append([]string(nil), models.DefaultExportFormats...),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.Store.Templates().Create(ctx, tmpl); err != nil {
		return err
	}
	log.Info().Str("template_id", tmpl.ID).Str("template_name", name).Msg("Anchor template created")
	fmt.Printf("Created template %q (%s)\n", name, tmpl.ID)
	return nil
}

// publishRun only needs the queue, so it skips opening the store.
func publishRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile, nil)
	if err != nil {
		return err
	}
	helpers.ConfigureLogging(cfg)

	body, err := buildEnvelope(args[0], publishPayload, publishWrapSNS, time.Now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	c := &helpers.AppComponents{Config: cfg}
	defer c.CloseAll(ctx)
	q, err := c.OpenQueue(ctx)
	if err != nil {
		return err
	}
	defer q.Close()

	if err := q.Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", args[0], err)
	}
	fmt.Printf("Published %s to the %s queue\n", args[0], cfg.Queue.Driver)
	return nil
}

func dueRun(cmd *cobra.Command, args []string) error {
	c, err := components()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	defer c.CloseAll(ctx)

	engine := schedules.NewEngine(c.Store.Schedules(), log.Logger)
	due, err := engine.Due(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		fmt.Println("No schedules are due.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\tNAME\tFREQUENCY\tNEXT RUN\tRUNS\n")
	for _, s := range due {
		next := "N/A"
		if s.NextRunAt != nil {
			next = s.NextRunAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Name, s.Frequency, next, s.RunCount)
	}
	return w.Flush()
}

// buildEnvelope renders an event envelope, optionally wrapped the way an SNS
// topic delivers it to a subscribed queue.
func buildEnvelope(eventType, payload string, wrapSNS bool, now time.Time) ([]byte, error) {
	if events.ParseKind(eventType) == events.KindUnrecognized {
		log.Warn().Str("event_type", eventType).Msg("Publishing an event type the worker does not recognise")
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil || fields == nil {
		return nil, errors.New("--payload must be a JSON object")
	}

	envelope, err := json.Marshal(map[string]any{
		"event_id":    uuid.NewString(),
		"event_type":  eventType,
		"occurred_at": now.Format(time.RFC3339),
		"payload":     fields,
	})
	if err != nil {
		return nil, err
	}
	if !wrapSNS {
		return envelope, nil
	}
	return json.Marshal(map[string]any{
		"Type":      "Notification",
		"MessageId": uuid.NewString(),
		"Message":   string(envelope),
		"Timestamp": now.Format(time.RFC3339),
	})
}
