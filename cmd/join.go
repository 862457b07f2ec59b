package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vericall/vericall/internal/callclient"
	"github.com/vericall/vericall/internal/signaling"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"
)

var (
	joinServer   string
	joinMeeting  string
	joinID       string
	joinRole     string
	joinSTUN     []string
	joinTURN     string
	joinTURNUser string
	joinTURNPass string
)

// joinCmd is a headless participant for smoke-testing a deployment without
// a browser: it joins the room and runs the offer/answer exchange end to end.
var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a meeting room as a headless participant",
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinServer, "server", "ws://localhost:9090/ws", "signaling relay URL")
	joinCmd.Flags().StringVar(&joinMeeting, "meeting", "", "meeting ID (required)")
	joinCmd.Flags().StringVar(&joinID, "id", "", "participant ID (random when empty)")
	joinCmd.Flags().StringVar(&joinRole, "role", "customer", "participant role: customer or agent")
	joinCmd.Flags().StringSliceVar(&joinSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs")
	joinCmd.Flags().StringVar(&joinTURN, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&joinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&joinTURNPass, "turn-pass", "", "TURN password")
	_ = joinCmd.MarkFlagRequired("meeting")
}

func runJoin(cmd *cobra.Command, args []string) error {
	role := signaling.Role(joinRole)
	if role != signaling.RoleCustomer && role != signaling.RoleAgent {
		return fmt.Errorf("unknown role %q", joinRole)
	}
	if joinID == "" {
		joinID = uuid.New().String()
	}

	iceServers := []webrtc.ICEServer{{URLs: joinSTUN}}
	if joinTURN != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       []string{joinTURN},
			Username:   joinTURNUser,
			Credential: joinTURNPass,
		})
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := callclient.Dial(ctx, callclient.Options{
		ServerURL:     joinServer,
		MeetingID:     joinMeeting,
		ParticipantID: joinID,
		Role:          role,
		ICEServers:    iceServers,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("joined meeting", "meeting_id", joinMeeting, "id", joinID, "role", role)

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
