package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tapfeed/internal/httputil"
	"tapfeed/internal/sink"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Manage update subscriptions",
}

var subscribeAddCmd = &cobra.Command{
	Use:   "add <user-id> <group|friend> <destination-id>",
	Short: "Subscribe a destination to a user's updates",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, class, destID := args[0], args[1], args[2]
		if err := httputil.ValidateNumericID(userID); err != nil {
			return err
		}
		if class != sink.ClassGroup && class != sink.ClassFriend {
			return fmt.Errorf("destination class must be %q or %q", sink.ClassGroup, sink.ClassFriend)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, true, false, true)
		if err != nil {
			return err
		}
		defer a.Close()

		// Confirm the target exists before recording anything.
		profile, err := a.extractor.Profile(ctx, userID)
		if err != nil {
			return fmt.Errorf("looking up user %s: %w", userID, err)
		}

		if err := a.store.Add(userID, class, destID); err != nil {
			return fmt.Errorf("recording subscription: %w", err)
		}
		fmt.Printf("subscribed %s %s to updates from %s (%s)\n",
			class, destID, userID, profile.Nickname)
		return nil
	},
}

var subscribeRemoveCmd = &cobra.Command{
	Use:   "remove <user-id> <group|friend> <destination-id>",
	Short: "Unsubscribe a destination from a user's updates",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, class, destID := args[0], args[1], args[2]

		a, err := newApp(cmd.Context(), false, false, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Remove(userID, class, destID); err != nil {
			return fmt.Errorf("removing subscription: %w", err)
		}
		fmt.Printf("unsubscribed %s %s from %s\n", class, destID, userID)
		return nil
	},
}

var subscribeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false, false, true)
		if err != nil {
			return err
		}
		defer a.Close()

		targets := a.store.Targets()
		if len(targets) == 0 {
			fmt.Println("no subscriptions")
			return nil
		}
		for _, target := range targets {
			d := a.store.DestinationsFor(target)
			fmt.Printf("%s\tlast=%s\tgroups=%v\tfriends=%v\n",
				target, orDash(a.store.LastSeen(target)), d.Groups, d.Friends)
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	subscribeCmd.AddCommand(subscribeAddCmd)
	subscribeCmd.AddCommand(subscribeRemoveCmd)
	subscribeCmd.AddCommand(subscribeListCmd)
}
