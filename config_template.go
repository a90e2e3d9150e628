package main

import (
	"io"
	"os"
)

var configTemplate = `[panel]
listen = :4000
username = admin
; plain text, {SHA}<sha1 hex> or {BCRYPT}<bcrypt hash>
; PANEL_USER and PANEL_PASS in the environment override both
password = {SHA}82ab876d1387bfafe46cc1c8a2ef074eae50cb1d

[stack]
dir = /srv/stack
env_file = /srv/stack/.env
caddyfile = /srv/stack/caddy/Caddyfile
proxy_restart_command = docker compose --project-directory /srv/stack restart caddy
proxy_restart_timeout = 300
stack_restart_command = docker compose --project-directory /srv/stack up -d
stack_restart_timeout = 600
compose_ps_command = docker compose --project-directory /srv/stack ps --format json
; run privileged commands through sudo -n
sudo = false

[accounts]
sharing_group = sftpusers
home_root = /srv/sftp
; shell must be one of shells, accounts with other shells are not listed
shell = /bin/bash
shells = /bin/bash,/bin/sh,/usr/bin/bash,/bin/zsh,/usr/bin/zsh
operator_user = ubuntu

[log]
level = info
audit_file = /var/log/stackpanel/audit.log
audit_max_bytes = 50MB
audit_backups = 10
`

// InitTemplateCommand implemnts flags.Commander interface
type InitTemplateCommand struct {
	OutFile string `short:"o" long:"output" description:"the output file name" required:"true"`
}

var initTemplateCommand InitTemplateCommand

// Execute execute the init command
func (x *InitTemplateCommand) Execute(args []string) error {
	f, err := os.OpenFile(x.OutFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return GenTemplate(f)
}

// GenTemplate generate the template
func GenTemplate(writer io.Writer) error {
	_, err := writer.Write([]byte(configTemplate))
	return err
}

func init() {
	parser.AddCommand("init",
		"initialize a template",
		"The init subcommand writes the supported settings to specified file",
		&initTemplateCommand)
}
