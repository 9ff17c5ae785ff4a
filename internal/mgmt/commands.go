package mgmt

import (
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoerr"
)

func (s *session) cmdShow(args []string) {
	if len(args) != 1 {
		s.reply("usage: show {config|status|clients}")
		return
	}
	switch args[0] {
	case "config":
		s.showConfig()
	case "status":
		s.showStatus()
	case "clients":
		s.showClients()
	default:
		s.reply("unknown show target %q", args[0])
	}
}

func (s *session) showConfig() {
	cfg := s.server.cfg.Active()

	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"field", "value"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")

	table.Append([]string{"role", string(cfg.Role)})
	table.Append([]string{"listen_addr", cfg.ListenAddr})
	table.Append([]string{"listen_port", strconv.Itoa(cfg.ListenPort)})
	table.Append([]string{"connect_addr", cfg.ConnectAddr})
	table.Append([]string{"connect_port", strconv.Itoa(cfg.ConnectPort)})
	table.Append([]string{"encryption", string(cfg.Encryption)})
	table.Append([]string{"mgmt_port", strconv.Itoa(cfg.MgmtPort)})
	table.Render()

	s.reply(strings.TrimRight(b.String(), "\n"))
}

func (s *session) showStatus() {
	cfg := s.server.cfg.Active()

	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"field", "value"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")

	table.Append([]string{"role", string(cfg.Role)})
	table.Append([]string{"uptime", s.server.uptime().String()})
	table.Append([]string{"has_pending", boolStr(s.server.cfg.HasPending())})
	table.Append([]string{"active_mgmt_sessions", strconv.Itoa(s.server.activeSessionCount())})
	table.Render()

	s.reply(strings.TrimRight(b.String(), "\n"))
}

func (s *session) showClients() {
	var peers []string
	if s.server.clientPeers != nil {
		peers = s.server.clientPeers()
	}

	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"peer"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")

	for _, p := range peers {
		table.Append([]string{p})
	}
	table.Render()

	if len(peers) == 0 {
		s.reply("no connected clients")
		return
	}
	s.reply(strings.TrimRight(b.String(), "\n"))
}

func (s *session) cmdGet(args []string) {
	if len(args) != 1 {
		s.reply("usage: get <param>")
		return
	}
	cfg := s.server.cfg.Active()
	value, err := xoeconfig.GetField(&cfg, args[0])
	if err != nil {
		s.reply("error: %s", xoerr.RenderFieldError(err))
		return
	}
	s.reply("%s = %s", args[0], value)
}

func (s *session) cmdSet(args []string) {
	if len(args) != 2 {
		s.reply("usage: set <param> <value>")
		return
	}
	name, value := args[0], args[1]
	err := s.server.cfg.MutatePending(func(c *xoeconfig.Configuration) error {
		return xoeconfig.SetField(c, name, value)
	})
	if err != nil {
		s.reply("error: %s", xoerr.RenderFieldError(err))
		return
	}
	s.reply("ok, %s set in pending configuration", name)
}

func (s *session) cmdPending() {
	pending, has := s.server.cfg.Pending()
	if !has {
		s.reply("no pending changes")
		return
	}
	s.reply("pending: role=%s listen=%s:%d connect=%s:%d encryption=%s",
		pending.Role, pending.ListenAddr, pending.ListenPort,
		pending.ConnectAddr, pending.ConnectPort, pending.Encryption)
}

func (s *session) cmdClear() {
	s.server.cfg.DiscardPending()
	s.reply("pending configuration discarded")
}

func (s *session) cmdValidate() {
	pending, has := s.server.cfg.Pending()
	if !has {
		s.reply("no pending changes to validate")
		return
	}
	if err := pending.Validate(); err != nil {
		s.reply("invalid: %s", xoerr.RenderFieldError(err))
		return
	}
	s.reply("pending configuration is valid")
}

func (s *session) cmdRestart() {
	if !s.server.cfg.HasPending() {
		s.reply("no pending changes, nothing to restart into")
		return
	}
	s.server.restart.Request()
	s.reply("restart requested, active role will reload pending configuration")
}


func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
