package executor

import (
	"context"
	"fmt"
	"strings"

	conductor "github.com/goliatone/go-conductor"
	"github.com/goliatone/go-conductor/uploads"

	"github.com/google/uuid"
)

// actionOutcome is what one handler reports back on success.
type actionOutcome struct {
	result   map[string]any
	affected []string
	rollback map[string]any
}

// dispatchAction routes one action to its handler. The switch is exhaustive
// over the supported type set; adding a type without a handler arm fails
// here, not in production data.
func (e *Executor) dispatchAction(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	switch action.Type {
	case conductor.ActionCreateTask:
		return e.createTask(ctx, tx, action, user)
	case conductor.ActionAssignTask:
		return e.assignTask(ctx, tx, action, user)
	case conductor.ActionUpdateTask:
		return e.updateTask(ctx, tx, action, user)
	case conductor.ActionCreateChannel:
		return e.createChannel(ctx, tx, action, user)
	case conductor.ActionSendMessage:
		return e.sendMessage(ctx, tx, action, user)
	case conductor.ActionInviteUser:
		return e.inviteUser(ctx, tx, action, user)
	case conductor.ActionUploadFile:
		return e.uploadFile(ctx, tx, action, user)
	case conductor.ActionSendNotification:
		return e.sendNotification(ctx, tx, action, user)
	case conductor.ActionScheduleMeeting:
		return e.scheduleMeeting(ctx, tx, action, user)
	case conductor.ActionGenerateReport:
		return e.generateReport(ctx, tx, action, user)
	default:
		return actionOutcome{}, conductor.CloneError(conductor.ErrUnsupportedActionType,
			fmt.Sprintf("no handler for action type %q", action.Type), nil,
			map[string]any{"action_id": action.ID})
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func stringSliceParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return strings.Split(vv, ",")
	}
	return nil
}

func (e *Executor) createTask(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	taskID := stringParam(action.Parameters, "task_id", uuid.NewString())
	title := stringParam(action.Parameters, "title", "Untitled task")
	description := stringParam(action.Parameters, "description", "")

	_, err := tx.Query(ctx,
		`INSERT INTO tasks (id, organization_id, title, description, status, created_by, created_at)
		 VALUES ($1, $2, $3, $4, 'open', $5, now())`,
		taskID, user.OrganizationID, title, description, user.UserID)
	if err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"task_id": taskID, "title": title},
		affected: []string{taskID},
		rollback: map[string]any{"created_task_id": taskID},
	}, nil
}

func (e *Executor) assignTask(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	taskID := stringParam(action.Parameters, "task_id", "")
	assignee := stringParam(action.Parameters, "assignee_id", "")
	if taskID == "" || assignee == "" {
		return actionOutcome{}, fmt.Errorf("assign_task requires task_id and assignee_id")
	}

	previous, err := tx.Query(ctx,
		`SELECT assignee_id FROM task_assignments WHERE task_id = $1`, taskID)
	if err != nil {
		return actionOutcome{}, err
	}
	previousAssignees := make([]string, 0, len(previous.Rows))
	for _, row := range previous.Rows {
		if s, ok := row["assignee_id"].(string); ok {
			previousAssignees = append(previousAssignees, s)
		}
	}

	if _, err := tx.Query(ctx,
		`INSERT INTO task_assignments (task_id, assignee_id, assigned_by, assigned_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (task_id, assignee_id) DO NOTHING`,
		taskID, assignee, user.UserID); err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"task_id": taskID, "assignee_id": assignee},
		affected: []string{taskID, assignee},
		rollback: map[string]any{"task_id": taskID, "previous_assignees": previousAssignees},
	}, nil
}

func (e *Executor) updateTask(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	taskID := stringParam(action.Parameters, "task_id", "")
	if taskID == "" {
		return actionOutcome{}, fmt.Errorf("update_task requires task_id")
	}
	status := stringParam(action.Parameters, "status", "")
	title := stringParam(action.Parameters, "title", "")

	previous, err := tx.Query(ctx,
		`SELECT title, status FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return actionOutcome{}, err
	}
	var prior map[string]any
	if len(previous.Rows) > 0 {
		prior = previous.Rows[0]
	}

	if _, err := tx.Query(ctx,
		`UPDATE tasks
		 SET title = COALESCE(NULLIF($2, ''), title),
		     status = COALESCE(NULLIF($3, ''), status),
		     updated_by = $4, updated_at = now()
		 WHERE id = $1`,
		taskID, title, status, user.UserID); err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"task_id": taskID},
		affected: []string{taskID},
		rollback: map[string]any{"task_id": taskID, "previous": prior},
	}, nil
}

func (e *Executor) createChannel(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	channelID := stringParam(action.Parameters, "channel_id", uuid.NewString())
	name := stringParam(action.Parameters, "name", "general")

	_, err := tx.Query(ctx,
		`INSERT INTO channels (id, organization_id, name, created_by, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		channelID, user.OrganizationID, name, user.UserID)
	if err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"channel_id": channelID, "name": name},
		affected: []string{channelID},
		rollback: map[string]any{"created_channel_id": channelID},
	}, nil
}

func (e *Executor) sendMessage(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	channelID := stringParam(action.Parameters, "channel_id", "")
	if channelID == "" {
		return actionOutcome{}, fmt.Errorf("send_message requires channel_id")
	}
	body := stringParam(action.Parameters, "body", stringParam(action.Parameters, "content", ""))
	messageID := uuid.NewString()

	_, err := tx.Query(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, body, sent_at)
		 VALUES ($1, $2, $3, $4, now())`,
		messageID, channelID, user.UserID, body)
	if err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"message_id": messageID, "channel_id": channelID},
		affected: []string{messageID, channelID},
		rollback: map[string]any{"created_message_id": messageID},
	}, nil
}

func (e *Executor) inviteUser(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	invitee := stringParam(action.Parameters, "user_id", stringParam(action.Parameters, "invitee_id", ""))
	if invitee == "" {
		return actionOutcome{}, fmt.Errorf("invite_user requires user_id")
	}
	channelID := stringParam(action.Parameters, "channel_id", "")
	inviteID := uuid.NewString()

	_, err := tx.Query(ctx,
		`INSERT INTO invitations (id, organization_id, invitee_id, channel_id, invited_by, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, now())`,
		inviteID, user.OrganizationID, invitee, channelID, user.UserID)
	if err != nil {
		return actionOutcome{}, err
	}

	affected := []string{inviteID, invitee}
	if channelID != "" {
		affected = append(affected, channelID)
	}
	return actionOutcome{
		result:   map[string]any{"invitation_id": inviteID, "invitee_id": invitee},
		affected: affected,
		rollback: map[string]any{"created_invitation_id": inviteID},
	}, nil
}

func (e *Executor) uploadFile(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	fileName := stringParam(action.Parameters, "file_name", "upload.bin")
	contentType := stringParam(action.Parameters, "content_type", "application/octet-stream")

	grant := uploads.Grant{FileID: stringParam(action.Parameters, "file_id", uuid.NewString())}
	if e.uploader != nil {
		var err error
		grant, err = e.uploader.InitiateUpload(ctx, uploads.Request{
			FileName:       fileName,
			ContentType:    contentType,
			OrganizationID: user.OrganizationID,
			UserID:         user.UserID,
		})
		if err != nil {
			return actionOutcome{}, fmt.Errorf("initiate upload: %w", err)
		}
	}

	_, err := tx.Query(ctx,
		`INSERT INTO files (id, organization_id, name, content_type, uploaded_by, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', now())`,
		grant.FileID, user.OrganizationID, fileName, contentType, user.UserID)
	if err != nil {
		return actionOutcome{}, err
	}

	result := map[string]any{"file_id": grant.FileID, "file_name": fileName}
	if grant.UploadURL != "" {
		result["upload_url"] = grant.UploadURL
	}
	return actionOutcome{
		result:   result,
		affected: []string{grant.FileID},
		rollback: map[string]any{"created_file_id": grant.FileID},
	}, nil
}

func (e *Executor) sendNotification(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	recipients := stringSliceParam(action.Parameters, "recipients")
	if len(recipients) == 0 {
		recipients = []string{user.UserID}
	}
	message := stringParam(action.Parameters, "message", "")
	notificationID := uuid.NewString()

	_, err := tx.Query(ctx,
		`INSERT INTO notifications (id, organization_id, sender_id, recipients, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		notificationID, user.OrganizationID, user.UserID, strings.Join(recipients, ","), message)
	if err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"notification_id": notificationID, "recipient_count": len(recipients)},
		affected: append([]string{notificationID}, recipients...),
		rollback: map[string]any{"created_notification_id": notificationID},
	}, nil
}

func (e *Executor) scheduleMeeting(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	meetingID := stringParam(action.Parameters, "meeting_id", uuid.NewString())
	title := stringParam(action.Parameters, "title", "Meeting")
	startsAt := stringParam(action.Parameters, "starts_at", "")

	_, err := tx.Query(ctx,
		`INSERT INTO meetings (id, organization_id, title, starts_at, organized_by, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, '')::timestamptz, $5, now())`,
		meetingID, user.OrganizationID, title, startsAt, user.UserID)
	if err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"meeting_id": meetingID, "title": title},
		affected: []string{meetingID},
		rollback: map[string]any{"created_meeting_id": meetingID},
	}, nil
}

func (e *Executor) generateReport(ctx context.Context, tx *RunTransaction, action conductor.Action, user conductor.UserContext) (actionOutcome, error) {
	reportID := stringParam(action.Parameters, "report_id", uuid.NewString())
	reportType := stringParam(action.Parameters, "report_type", "summary")

	_, err := tx.Query(ctx,
		`INSERT INTO reports (id, organization_id, report_type, status, requested_by, created_at)
		 VALUES ($1, $2, $3, 'queued', $4, now())`,
		reportID, user.OrganizationID, reportType, user.UserID)
	if err != nil {
		return actionOutcome{}, err
	}

	return actionOutcome{
		result:   map[string]any{"report_id": reportID, "report_type": reportType},
		affected: []string{reportID},
		rollback: map[string]any{"created_report_id": reportID},
	}, nil
}
