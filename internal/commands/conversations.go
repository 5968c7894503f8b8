package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"cchat/internal/conversations"
	"cchat/internal/logger"
	"cchat/internal/models"
	"cchat/internal/notice"

	"github.com/spf13/cobra"
)

func init() {
	conversationsCreateCmd.Flags().String("with", "", "user id for a direct conversation")
	conversationsCreateCmd.Flags().String("group", "", "group name")
	conversationsCreateCmd.Flags().StringSlice("member", nil, "group member user id (repeatable)")
	conversationsCreateCmd.Flags().String("avatar", "", "image file to upload as group avatar")

	usersCmd.Flags().String("search", "", "name or email fragment")
	usersCmd.Flags().String("type", "direct", "direct leaves out existing direct partners, group lists everyone")

	conversationsCmd.AddCommand(conversationsListCmd, conversationsCreateCmd, conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd, usersCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List, create and delete conversations",
}

func newAggregator(env *clientEnv) *conversations.Aggregator {
	return conversations.New(env.api, env.sess, env.uploader, logger.L)
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show direct and group conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		buckets, err := newAggregator(env).Fetch(cmd.Context())
		if err != nil {
			if expired(err) {
				env.sess.Logout()
			}
			return env.explain(err, notice.ConversationsFailed)
		}

		p := conversations.NewPresenter(env.cfg.Locale.Lang)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, p.Catalog.Plural(notice.ConversationsCount, buckets.Len()))
		printBucket(out, "Direct", buckets.Direct, p, env.sess.UserID())
		printBucket(out, "Groups", buckets.Group, p, env.sess.UserID())
		return nil
	},
}

func printBucket(out io.Writer, title string, list []models.Conversation, p *conversations.Presenter, me string) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", title)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range list {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", c.ID, p.DisplayName(c, me), p.Preview(c), p.LastActivity(c))
	}
	w.Flush()
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a direct conversation (--with) or a group (--group --member ...)",
	RunE: func(cmd *cobra.Command, args []string) error {
		with, _ := cmd.Flags().GetString("with")
		group, _ := cmd.Flags().GetString("group")
		members, _ := cmd.Flags().GetStringSlice("member")
		avatar, _ := cmd.Flags().GetString("avatar")
		if (with == "") == (group == "") {
			return fmt.Errorf("pass either --with or --group")
		}

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		agg := newAggregator(env)
		var (
			conv     models.Conversation
			fallback string
		)
		if with != "" {
			conv, err = agg.CreateDirect(cmd.Context(), with)
			fallback = notice.ConversationCreateFailed
		} else {
			conv, err = agg.CreateGroup(cmd.Context(), group, members, avatar)
			fallback = notice.GroupCreateFailed
		}
		if err != nil {
			if expired(err) {
				env.sess.Logout()
			}
			return env.explain(err, fallback)
		}

		p := conversations.NewPresenter(env.cfg.Locale.Lang)
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", conv.ID, p.DisplayName(conv, env.sess.UserID()))
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		if err := newAggregator(env).Delete(cmd.Context(), args[0]); err != nil {
			if expired(err) {
				env.sess.Logout()
			}
			return env.explain(err, notice.ConversationDeleteFailed)
		}
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Find users to start a conversation with",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		fetchType, _ := cmd.Flags().GetString("type")

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		users, err := env.api.SearchUsers(cmd.Context(), env.sess.UserID(), fetchType, search)
		if err != nil {
			if expired(err) {
				env.sess.Logout()
			}
			return env.explain(err, notice.ServerError)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\n", u.ID, u.Name)
		}
		return w.Flush()
	},
}
