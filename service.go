package main

import (
	"fmt"
	"os"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
)

const serviceName = "stackpanel"

// ServiceCommand install/uninstall/start/stop the panel service
type ServiceCommand struct {
}

var serviceCommand ServiceCommand

// program only satisfies service.Interface: the installed service runs the
// binary without a subcommand, which starts the server in main
type program struct{}

func (p *program) Start(s service.Service) error {
	return nil
}

func (p *program) Stop(s service.Service) error {
	return nil
}

func newService() (service.Service, error) {
	serviceArgs := make([]string, 0)
	if options.Configuration != "" {
		serviceArgs = append(serviceArgs, "--configuration="+options.Configuration)
	}
	if options.EnvFile != "" {
		serviceArgs = append(serviceArgs, "--env-file="+options.EnvFile)
	}

	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: "stackpanel",
		Description: "Operator control plane for the self-hosted stack",
		Arguments:   serviceArgs,
	}
	return service.New(&program{}, svcConfig)
}

// Execute implement Execute() method defined in flags.Commander interface, executes the given command
func (sc ServiceCommand) Execute(args []string) error {
	if len(args) == 0 {
		showUsage()
		return nil
	}

	s, err := newService()
	if err != nil {
		log.Error("service init failed: ", err)
		return err
	}

	action := args[0]
	switch action {
	case "install":
		err = s.Install()
	case "uninstall":
		s.Stop()
		err = s.Uninstall()
	case "start":
		err = s.Start()
	case "stop":
		err = s.Stop()
	default:
		showUsage()
		return nil
	}
	if err != nil {
		log.Errorf("Failed to %s service %s: %v", action, serviceName, err)
		fmt.Fprintf(os.Stderr, "Failed to %s service %s: %v\n", action, serviceName, err)
		return err
	}
	fmt.Printf("Succeed to %s service %s\n", action, serviceName)
	return nil
}

func showUsage() {
	fmt.Println("usage: stackpanel service install/uninstall/start/stop")
}

func init() {
	parser.AddCommand("service",
		"install/uninstall/start/stop service",
		"install/uninstall/start/stop service",
		&serviceCommand)
}
