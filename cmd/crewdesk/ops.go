package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/crewdesk/crewdesk/internal/core"
	"github.com/crewdesk/crewdesk/internal/jobs"
	"github.com/crewdesk/crewdesk/internal/storage/sqlite"
	"github.com/crewdesk/crewdesk/pkg/log"
	"github.com/spf13/cobra"
)

var ingestFlags struct {
	workspace string
	name      string
	srcType   string
	url       string
	file      string

	questionColumn string
	answerColumn   string
	contentColumn  string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register a knowledge source and queue its ingestion",
	Long: `Creates a knowledge source and enqueues a knowledge-ingestion job for it.
URL sources are crawled; QA, CSV and MANUAL sources read their content from --file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()
		logger := log.FromCtx(ctx)

		srcType := core.SourceType(strings.ToUpper(ingestFlags.srcType))
		switch srcType {
		case core.SourceTypeURL, core.SourceTypeQA, core.SourceTypeCSV, core.SourceTypeManual:
		default:
			return fmt.Errorf("unknown source type %q", ingestFlags.srcType)
		}

		var content string
		if srcType == core.SourceTypeURL {
			if ingestFlags.url == "" {
				return fmt.Errorf("--url is required for URL sources")
			}
		} else {
			if ingestFlags.file == "" {
				return fmt.Errorf("--file is required for %s sources", srcType)
			}
			data, err := os.ReadFile(ingestFlags.file)
			if err != nil {
				return fmt.Errorf("read content file: %w", err)
			}
			content = string(data)
		}

		db, producers, err := initQueue(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		source := &core.KnowledgeSource{
			WorkspaceID: ingestFlags.workspace,
			Name:        ingestFlags.name,
			Type:        srcType,
			URL:         ingestFlags.url,
			Config: core.SourceConfig{
				QuestionColumn: ingestFlags.questionColumn,
				AnswerColumn:   ingestFlags.answerColumn,
				ContentColumn:  ingestFlags.contentColumn,
			},
		}
		if err := sqlite.NewSourceRepo(db).Create(ctx, source); err != nil {
			return err
		}

		jobID, created, err := producers.EnqueueKnowledgeIngestion(ctx, jobs.IngestionPayload{
			SourceID: source.ID,
			Content:  content,
		})
		if err != nil {
			return err
		}

		logger.Info().
			Str("source_id", source.ID).
			Str("job_id", jobID).
			Bool("created", created).
			Msg("ingestion queued")
		fmt.Fprintln(cmd.OutOrStdout(), source.ID)
		return nil
	},
}

var messageFlags struct {
	workspace    string
	conversation string
	customer     string
	channel      string
}

var messageCmd = &cobra.Command{
	Use:   "message <text>",
	Short: "Record a customer message and queue an AI response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()
		logger := log.FromCtx(ctx)

		db, producers, err := initQueue(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		conversations := sqlite.NewConversationRepo(db)

		var conv *core.Conversation
		if messageFlags.conversation != "" {
			conv, err = conversations.Get(ctx, messageFlags.conversation)
			if err != nil {
				return err
			}
		} else {
			conv = &core.Conversation{
				WorkspaceID: messageFlags.workspace,
				CustomerID:  messageFlags.customer,
				Channel:     core.Channel(strings.ToUpper(messageFlags.channel)),
			}
			if err := conversations.Create(ctx, conv); err != nil {
				return err
			}
		}

		msg := &core.StoredMessage{
			ConversationID: conv.ID,
			Sender:         core.SenderCustomer,
			Content:        args[0],
		}
		if err := sqlite.NewMessageRepo(db).Add(ctx, msg); err != nil {
			return err
		}

		jobID, _, err := producers.EnqueueAIResponse(ctx, jobs.AIResponsePayload{
			ConversationID:  conv.ID,
			WorkspaceID:     conv.WorkspaceID,
			CustomerMessage: msg.Content,
			MessageID:       msg.ID,
		})
		if err != nil {
			return err
		}

		logger.Info().
			Str("conversation_id", conv.ID).
			Str("job_id", jobID).
			Msg("ai response queued")
		fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
		return nil
	},
}

var takeoverCmd = &cobra.Command{
	Use:   "takeover <conversation-id>",
	Short: "Hand a conversation to a human agent",
	Long:  `Marks the conversation as human-handled. Pending AI jobs for it complete without replying.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		db, _, err := initQueue(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := sqlite.NewConversationRepo(db).TakeOver(ctx, args[0]); err != nil {
			return err
		}

		log.FromCtx(ctx).Info().Str("conversation_id", args[0]).Msg("conversation taken over")
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.workspace, "workspace", "default", "workspace the source belongs to")
	ingestCmd.Flags().StringVar(&ingestFlags.name, "name", "", "display name for the source")
	ingestCmd.Flags().StringVar(&ingestFlags.srcType, "type", "", "source type: URL, QA, CSV or MANUAL")
	ingestCmd.Flags().StringVar(&ingestFlags.url, "url", "", "start URL for URL sources")
	ingestCmd.Flags().StringVar(&ingestFlags.file, "file", "", "content file for QA, CSV and MANUAL sources")
	ingestCmd.Flags().StringVar(&ingestFlags.questionColumn, "question-column", "", "CSV column holding questions")
	ingestCmd.Flags().StringVar(&ingestFlags.answerColumn, "answer-column", "", "CSV column holding answers")
	ingestCmd.Flags().StringVar(&ingestFlags.contentColumn, "content-column", "", "CSV column holding freeform content")
	_ = ingestCmd.MarkFlagRequired("name")
	_ = ingestCmd.MarkFlagRequired("type")

	messageCmd.Flags().StringVar(&messageFlags.workspace, "workspace", "default", "workspace for a new conversation")
	messageCmd.Flags().StringVar(&messageFlags.conversation, "conversation", "", "existing conversation to append to")
	messageCmd.Flags().StringVar(&messageFlags.customer, "customer", "", "customer identifier for a new conversation")
	messageCmd.Flags().StringVar(&messageFlags.channel, "channel", string(core.ChannelLiveChat), "channel for a new conversation")

	rootCmd.AddCommand(ingestCmd, messageCmd, takeoverCmd)
}
