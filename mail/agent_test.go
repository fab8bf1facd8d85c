//go:build integration
// +build integration

package mail

import (
	"context"
	"fmt"
	"testing"
	"time"

	smtpmock "github.com/mocktools/go-smtp-mock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/types"
)

func TestAgent_DeliversEnqueuedWarning(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{})
	require.NoError(t, server.Start())
	defer server.Stop()

	cfg := types.MailConfig{
		Host:       server.HostAddress,
		Port:       server.Port,
		Username:   "device@example.com",
		SenderName: "Sentinel",
		Groups: [types.MaxGroups]types.MailGroup{
			{
				Name:       "ops",
				Enabled:    true,
				Subject:    "warn {{.AlarmIndex}}",
				Body:       "body",
				Recipients: []string{"ops@example.com"},
			},
		},
	}

	agent, err := New(cfg, "LS-0000000001", logger.New("test"))
	require.NoError(t, err)
	agent.Start()
	defer agent.Stop()

	ok := agent.Enqueue(Item{
		Priority: types.PriorityNormal,
		Template: types.TemplateWarning,
		Origin:   types.Origin{GroupIndex: 0, AlarmIndex: 1},
		Group:    cfg.Groups[0],
		Context:  types.DispatchContext{AlarmIndex: 1, RemainingMinutes: 10},
	})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return len(server.Messages()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	msgs := server.Messages()
	assert.Contains(t, msgs[0].MsgRequest(), "warn 1")
	assert.Contains(t, msgs[0].RcpttoRequestResponse()[0][0], "ops@example.com")
}

func TestAgent_SendFinalSync_DedupHandledByCaller(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{})
	require.NoError(t, server.Start())
	defer server.Stop()

	cfg := types.MailConfig{
		Host:     server.HostAddress,
		Port:     server.Port,
		Username: "device@example.com",
		Groups: [types.MaxGroups]types.MailGroup{
			{Name: "final", Enabled: true, Recipients: []string{"final@example.com"}},
		},
	}
	agent, err := New(cfg, "LS-0000000001", logger.New("test"))
	require.NoError(t, err)

	err = agent.SendFinalSync(0, types.DispatchContext{IsFinal: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(server.Messages()) == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestAgent_SendIfSkipsNonFinalGroup(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{})
	require.NoError(t, server.Start())
	defer server.Stop()

	cfg := types.MailConfig{
		Host:     server.HostAddress,
		Port:     server.Port,
		Username: "device@example.com",
		Groups: [types.MaxGroups]types.MailGroup{
			{Name: "escalation", Enabled: true, Recipients: []string{"esc@example.com"}, SendIf: "IsFinal"},
		},
	}
	agent, err := New(cfg, "LS-0000000001", logger.New("test"))
	require.NoError(t, err)
	agent.Start()
	defer agent.Stop()

	agent.Enqueue(Item{
		Priority: types.PriorityNormal,
		Template: types.TemplateWarning,
		Origin:   types.Origin{GroupIndex: 0, AlarmIndex: 0},
		Group:    cfg.Groups[0],
		Context:  types.DispatchContext{IsFinal: false},
	})

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, server.Messages(), fmt.Sprintf("expected no messages, got %d", len(server.Messages())))
}

func TestAgent_TestConnection_Succeeds(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{})
	require.NoError(t, server.Start())
	defer server.Stop()

	cfg := types.MailConfig{
		Host:     server.HostAddress,
		Port:     server.Port,
		Username: "device@example.com",
	}
	agent, err := New(cfg, "LS-0000000001", logger.New("test"))
	require.NoError(t, err)

	result := agent.TestConnection(context.Background())
	assert.NoError(t, result.Err)
	assert.True(t, result.Sent)
}

func TestAgent_SendWarningSync_SucceedsWhenAnyGroupDelivers(t *testing.T) {
	server := smtpmock.New(smtpmock.ConfigurationAttr{})
	require.NoError(t, server.Start())
	defer server.Stop()

	cfg := types.MailConfig{
		Host:     server.HostAddress,
		Port:     server.Port,
		Username: "device@example.com",
		Groups: [types.MaxGroups]types.MailGroup{
			{Name: "a", Enabled: true, Recipients: []string{"a@example.com"}},
			{Name: "b", Enabled: true, Recipients: []string{"b@example.com"}},
		},
	}
	agent, err := New(cfg, "LS-0000000001", logger.New("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok := agent.SendWarningSync(ctx, types.DispatchContext{AlarmIndex: 0, RemainingMinutes: 5})
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		return len(server.Messages()) >= 1
	}, 5*time.Second, 50*time.Millisecond)
}
