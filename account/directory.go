package account

import (
	"bufio"
	"bytes"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ochinchina/stackpanel/faults"
	"github.com/spf13/afero"
)

// SystemAccount is a local account as recorded in the identity database
type SystemAccount struct {
	Username  string   `json:"username" yaml:"username"`
	UID       int      `json:"uid" yaml:"uid"`
	GID       int      `json:"gid" yaml:"gid"`
	HomeDir   string   `json:"home" yaml:"home"`
	Shell     string   `json:"shell" yaml:"shell"`
	Groups    []string `json:"groups" yaml:"groups"`
	HasAccess bool     `json:"has_access" yaml:"has_access"`
}

// InGroup returns true if the account is a member of group
func (a SystemAccount) InGroup(group string) bool {
	i := sort.SearchStrings(a.Groups, group)
	return i < len(a.Groups) && a.Groups[i] == group
}

// Directory is a read-only view of the identity database. Every call queries
// the current state; nothing is cached.
type Directory interface {
	// Lookup returns nil without error when username does not exist
	Lookup(username string) (*SystemAccount, error)
	List() ([]SystemAccount, error)
}

// FileDirectory reads passwd(5) and group(5) formatted files
type FileDirectory struct {
	fs         afero.Fs
	passwdPath string
	groupPath  string
}

// NewFileDirectory creates a FileDirectory for the system files /etc/passwd and /etc/group
func NewFileDirectory(fs afero.Fs) *FileDirectory {
	return NewFileDirectoryAt(fs, "/etc/passwd", "/etc/group")
}

// NewFileDirectoryAt creates a FileDirectory for the given files
func NewFileDirectoryAt(fs afero.Fs, passwdPath, groupPath string) *FileDirectory {
	return &FileDirectory{fs: fs, passwdPath: passwdPath, groupPath: groupPath}
}

// Lookup implements Directory
func (d *FileDirectory) Lookup(username string) (*SystemAccount, error) {
	accounts, err := d.List()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Username == username {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// List implements Directory
func (d *FileDirectory) List() ([]SystemAccount, error) {
	passwd, err := d.readRecords(d.passwdPath, 7)
	if err != nil {
		return nil, err
	}
	groups, err := d.readRecords(d.groupPath, 4)
	if err != nil {
		return nil, err
	}

	gidNames := make(map[int]string)
	members := make(map[string][]string)
	for _, g := range groups {
		if gid, err := strconv.Atoi(g[2]); err == nil {
			gidNames[gid] = g[0]
		}
		for _, m := range strings.Split(g[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members[m] = append(members[m], g[0])
			}
		}
	}

	accounts := make([]SystemAccount, 0, len(passwd))
	for _, p := range passwd {
		uid, err1 := strconv.Atoi(p[2])
		gid, err2 := strconv.Atoi(p[3])
		if err1 != nil || err2 != nil {
			continue
		}
		names := make(map[string]bool)
		if name, ok := gidNames[gid]; ok {
			names[name] = true
		}
		for _, g := range members[p[0]] {
			names[g] = true
		}
		a := SystemAccount{
			Username: p[0],
			UID:      uid,
			GID:      gid,
			HomeDir:  p[5],
			Shell:    p[6],
			Groups:   make([]string, 0, len(names)),
		}
		for name := range names {
			a.Groups = append(a.Groups, name)
		}
		sort.Strings(a.Groups)
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// readRecords returns the colon separated records of path that have at least
// fields fields. Comments and short lines are skipped.
func (d *FileDirectory) readRecords(path string, fields int) ([][]string, error) {
	b, err := afero.ReadFile(d.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, faults.IOError(err, "read %s", path)
	}
	records := make([][]string, 0)
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < fields {
			continue
		}
		records = append(records, parts)
	}
	if err := scanner.Err(); err != nil {
		return nil, faults.IOError(err, "read %s", path)
	}
	return records, nil
}
