// Task runner for building and testing bulkmodify: go run build.go <task>.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/craiggwilson/goke/task"
	"github.com/mongodb-labs/bulkmodify/buildscript"
)

var taskRegistry = task.NewRegistry(task.WithAutoNamespaces(true))

func init() {
	taskRegistry.Declare("check:goversion").Description("checks the go toolchain is recent enough").Do(buildscript.CheckMinimumGoVersion)
	taskRegistry.Declare("build").Description("build bulkmodify").DependsOn("check:goversion").Do(buildscript.BuildTool)
	taskRegistry.Declare("test:unit").Description("runs unit tests").OptionalArgs("pkgs").Do(buildscript.TestUnit)
	taskRegistry.Declare("test:integration").Description("runs integration tests against $TOOLS_TESTING_MONGOD").OptionalArgs("pkgs").Do(buildscript.TestIntegration)
}

func main() {
	err := task.Run(taskRegistry, os.Args[1:])
	if err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
