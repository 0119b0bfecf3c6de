package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"certify/internal/platform/issuer"
	"certify/internal/platform/kafka/consumer"
	"certify/internal/registry/client"
	"certify/internal/registry/models"
	"certify/pkg/requestcontext"
)

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.v.GetDuration(keyTimeout))
}

// documentDigest resolves --digest or --file into a digest string.
func (c *cli) documentDigest(cmd *cobra.Command) (string, error) {
	d, _ := cmd.Flags().GetString("digest")
	file, _ := cmd.Flags().GetString("file")
	switch {
	case d != "" && file != "":
		return "", errors.New("use either --digest or --file, not both")
	case file != "":
		algo, err := c.algorithm()
		if err != nil {
			return "", err
		}
		return algo.FromFile(file)
	default:
		return d, nil
	}
}

func addDocumentFlags(cmd *cobra.Command) {
	cmd.Flags().String("digest", "", "document digest as stored in the registry")
	cmd.Flags().String("file", "", "document to hash locally instead of --digest")
}

func (c *cli) addCmd() *cobra.Command {
	var cmdArgs models.InsertCommand
	var key string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a credential (overwrites any record at the key)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := c.documentDigest(cmd)
			if err != nil {
				return err
			}
			cmdArgs.IdentityKey = models.IdentityKey(key)
			cmdArgs.DocumentDigest = sum

			ctx, cancel := c.context(cmd)
			defer cancel()
			receipt, err := c.registry().Insert(ctx, cmdArgs)
			if err != nil {
				return explain(err)
			}
			return c.printJSON(receipt)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "identity key, e.g. the student number")
	cmd.Flags().StringVar(&cmdArgs.OwnerName, "owner", "", "credential holder's name")
	cmd.Flags().StringVar(&cmdArgs.Program, "program", "", "program of study")
	cmd.Flags().StringVar(&cmdArgs.GraduationPeriod, "period", "", "graduation period")
	addDocumentFlags(cmd)
	return cmd
}

func (c *cli) invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate KEY",
		Short: "Mark the credential at KEY as no longer valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			receipt, err := c.registry().Invalidate(ctx, models.IdentityKey(args[0]))
			if err != nil {
				return explain(err)
			}
			return c.printJSON(receipt)
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the record stored at KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			record, err := c.registry().Lookup(ctx, models.IdentityKey(args[0]))
			if err != nil {
				return explain(err)
			}
			return c.printJSON(record)
		},
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify KEY",
		Short: "Check a document digest against the record at KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := c.documentDigest(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			valid, err := c.registry().VerifyDigest(ctx, models.IdentityKey(args[0]), sum)
			if err != nil {
				return explain(err)
			}
			return c.printJSON(map[string]any{
				"identity_key":    args[0],
				"document_digest": sum,
				"valid":           valid,
			})
		},
	}
	addDocumentFlags(cmd)
	return cmd
}

func (c *cli) registeredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registered KEY",
		Short: "Report whether a credential was ever registered at KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			registered, err := c.registry().IsRegistered(ctx, models.IdentityKey(args[0]))
			if err != nil {
				return explain(err)
			}
			return c.printJSON(map[string]any{
				"identity_key": args[0],
				"registered":   registered,
			})
		},
	}
}

func (c *cli) hashCmd() *cobra.Command {
	var asCID bool
	cmd := &cobra.Command{
		Use:   "hash FILE",
		Short: "Print the digest of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			algo, err := c.algorithm()
			if err != nil {
				return err
			}
			sum, err := algo.FromFile(args[0])
			if err != nil {
				return err
			}
			if asCID {
				if sum, err = algo.CID(sum); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(c.out, sum)
			return err
		},
	}
	cmd.Flags().BoolVar(&asCID, "cid", false, "print a CIDv1 (raw codec) instead of the hex digest")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		scopes  []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an issuer token with the configured signing key",
		Long: `Mint an HS256 issuer token. Without CERTIFY_SIGNING_KEY the development
key is used, which a production server must never accept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := issuer.NewService(
				c.v.GetString(keySigningKey),
				c.v.GetString(keyIssuer),
				c.v.GetString(keyAudience),
				ttl,
			)
			ctx := requestcontext.WithTime(cmd.Context(), time.Now())
			token, _, err := svc.Issue(ctx, subject, scopes...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "issuing institution or officer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scopes to grant (default "+issuer.ScopeWrite+")")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		group     string
		fromStart bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream credential_added events from Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers := c.v.GetString(keyBrokers)
			if brokers == "" {
				return errors.New("no brokers configured: set --brokers or CERTIFY_BROKERS")
			}
			logger := slog.New(slog.NewTextHandler(c.errOut, nil))
			handler := consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
				return c.printEvent(msg)
			})
			cons, err := consumer.New(consumer.Config{
				Brokers:   brokers,
				GroupID:   group,
				Topics:    []string{c.v.GetString(keyTopic)},
				FromStart: fromStart,
			}, handler, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return cons.Run(ctx)
		},
	}
	cmd.Flags().String(keyBrokers, "", "comma-separated Kafka brokers")
	cmd.Flags().String(keyTopic, "", "topic carrying credential events")
	cmd.Flags().StringVar(&group, "group", "certifyctl-watch", "consumer group")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay events from the beginning")
	_ = c.v.BindPFlag(keyBrokers, cmd.Flags().Lookup(keyBrokers))
	_ = c.v.BindPFlag(keyTopic, cmd.Flags().Lookup(keyTopic))
	return cmd
}

func (c *cli) printEvent(msg *consumer.Message) error {
	if msg.Headers["event_type"] != models.EventCredentialAdded {
		return nil
	}
	var ev models.CredentialAdded
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		_, _ = fmt.Fprintf(c.errOut, "skipping malformed event at offset %d: %v\n", msg.Offset, err)
		return nil
	}
	return c.printJSON(ev)
}

// explain adds a hint for errors the user can fix.
func explain(err error) error {
	switch {
	case errors.Is(err, client.ErrWrongNetwork):
		return fmt.Errorf("%w\nhint: check --network against the server's /network", err)
	case errors.Is(err, client.ErrSignerRequired):
		return fmt.Errorf("%w\nhint: pass --token or set CERTIFY_TOKEN (see 'certifyctl token')", err)
	case errors.Is(err, client.ErrSignerRejected):
		return fmt.Errorf("%w\nhint: the token is expired, lacks %s, or was signed with another key", err, issuer.ScopeWrite)
	case errors.Is(err, client.ErrUnavailable):
		return fmt.Errorf("%w\nhint: the registry or its ledger store is unreachable; retry later", err)
	default:
		return err
	}
}
