// The sogomail command reads, saves and sends single messages against
// a remote mailbox store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Acidburn0zzz/sogo/internal/mailbox"
	"github.com/Acidburn0zzz/sogo/internal/message"
	"github.com/Acidburn0zzz/sogo/internal/store"
	"github.com/Acidburn0zzz/sogo/internal/tracehttp"
)

var (
	flagURL     string
	flagAccount string
	flagMailbox string
	flagToken   string
	flagUser    string
	flagPass    string
	flagTrace   bool
	flagVerbose bool
	flagTimeout time.Duration

	flagUID     int64
	flagDraftID string
	flagSubject string
	flagText    string
	flagTo      []string
	flagCc      []string
	flagBcc     []string
)

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose || flagTrace {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newClient(log *slog.Logger) (*store.Client, error) {
	if flagURL == "" {
		return nil, errors.New("--url is required")
	}

	hc := &http.Client{Timeout: flagTimeout}
	if flagTrace {
		hc.Transport = tracehttp.Wrap(nil, log)
	}

	opts := []store.Option{
		store.WithHTTPClient(hc),
		store.WithLogger(log),
	}
	switch {
	case flagToken != "":
		opts = append(opts, store.WithTokenSource(store.StaticToken(flagToken)))
	case flagUser != "":
		opts = append(opts, store.WithBasicAuth(flagUser, flagPass))
	}
	return store.New(flagURL, opts...)
}

func newMessage(log *slog.Logger, c *store.Client) *message.Message {
	deps := message.Deps{Store: c, Log: log}
	mbx := mailbox.New(strings.Split(flagMailbox, "/")...)

	var patch message.Patch
	if flagUID != message.UnsetUID {
		patch.UID = &flagUID
	}
	if flagDraftID != "" {
		patch.DraftID = &flagDraftID
	}
	m := message.New(deps, flagAccount, mbx, &patch)
	mbx.Append(m)
	return m
}

func editableFromFlags() *message.Editable {
	toList := func(raw []string) message.AddressList {
		var list message.AddressList
		for _, text := range raw {
			list = append(list, message.Address{Text: strings.TrimSpace(text)})
		}
		return list
	}
	return &message.Editable{
		Subject: flagSubject,
		Text:    flagText,
		To:      toList(flagTo),
		Cc:      toList(flagCc),
		Bcc:     toList(flagBcc),
	}
}

func runRead(cmd *cobra.Command, args []string) error {
	log := newLogger()
	c, err := newClient(log)
	if err != nil {
		return err
	}
	if flagUID == message.UnsetUID {
		return errors.New("--uid is required")
	}

	ctx := cmd.Context()
	m := newMessage(log, c)
	if err := m.Update(ctx); err != nil {
		return errors.Wrap(err, "unable to fetch message")
	}

	doc := m.Document()
	fmt.Printf("Id:      %s\n", m.ID())
	fmt.Printf("From:    %s\n", m.ShortAddress(message.FieldFrom))
	fmt.Printf("To:      %s\n", doc.To.Join())
	fmt.Printf("Subject: %s\n", doc.Subject)
	fmt.Printf("Date:    %s\n\n", doc.Date)
	fmt.Println(doc.Content)
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	log := newLogger()
	c, err := newClient(log)
	if err != nil {
		return err
	}
	if flagDraftID == "" {
		return errors.New("--draft-id is required")
	}

	ctx := cmd.Context()
	m := newMessage(log, c)
	m.SetEditable(editableFromFlags())
	if err := m.Save(ctx); err != nil {
		return errors.Wrap(err, "unable to save draft")
	}
	fmt.Printf("Saved as uid %d (%s)\n", m.UID(), m.ID())
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	log := newLogger()
	c, err := newClient(log)
	if err != nil {
		return err
	}
	if flagDraftID == "" {
		return errors.New("--draft-id is required")
	}

	ctx := cmd.Context()
	m := newMessage(log, c)
	m.SetEditable(editableFromFlags())
	outcome, err := m.Send(ctx)
	if err != nil {
		var rejected *message.SendError
		if errors.As(err, &rejected) {
			return errors.Errorf("send rejected by server: status %q, reason %q",
				rejected.Outcome.Status, rejected.Outcome.Reason)
		}
		return errors.Wrap(err, "unable to send draft")
	}
	fmt.Printf("Sent (status %s)\n", outcome.Status)
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "sogomail",
		Short:         "Read, save and send messages against a remote mailbox store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", os.Getenv("SOGOMAIL_URL"), "base URL of the mailbox store")
	pf.StringVar(&flagAccount, "account", "0", "mail account identifier")
	pf.StringVar(&flagMailbox, "mailbox", "INBOX", "mailbox path, components separated by /")
	pf.StringVar(&flagToken, "token", os.Getenv("SOGOMAIL_TOKEN"), "bearer token")
	pf.StringVar(&flagUser, "user", "", "basic auth user")
	pf.StringVar(&flagPass, "password", os.Getenv("SOGOMAIL_PASSWORD"), "basic auth password")
	pf.BoolVarP(&flagTrace, "trace", "T", false, "dump HTTP traffic")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.DurationVar(&flagTimeout, "timeout", 30*time.Second, "HTTP timeout")

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Fetch and print a message",
		RunE:  runRead,
	}
	readCmd.Flags().Int64Var(&flagUID, "uid", message.UnsetUID, "message uid")

	draftFlags := func(cmd *cobra.Command) {
		cmd.Flags().Int64Var(&flagUID, "uid", message.UnsetUID, "message uid, if already persisted")
		cmd.Flags().StringVar(&flagDraftID, "draft-id", "", "draft identifier")
		cmd.Flags().StringVar(&flagSubject, "subject", "", "draft subject")
		cmd.Flags().StringVar(&flagText, "text", "", "draft body text")
		cmd.Flags().StringSliceVar(&flagTo, "to", nil, "recipient")
		cmd.Flags().StringSliceVar(&flagCc, "cc", nil, "carbon copy recipient")
		cmd.Flags().StringSliceVar(&flagBcc, "bcc", nil, "blind carbon copy recipient")
	}

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Save a draft",
		RunE:  runSave,
	}
	draftFlags(saveCmd)

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a draft",
		RunE:  runSend,
	}
	draftFlags(sendCmd)

	rootCmd.AddCommand(readCmd, saveCmd, sendCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
}
