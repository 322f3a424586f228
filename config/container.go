package config

import (
	"go.uber.org/zap"

	xruntime "github.com/Drachenfrucht1/wait-free-tree/lib/runtime"
	"github.com/Drachenfrucht1/wait-free-tree/xlog"
)

// LogContainerContext emits one Info line noting whether the process is
// running inside Docker/Kubernetes and, if so, its container ID — useful
// context when a reported MaxThreads looks smaller than the host's own
// core count.
func LogContainerContext(logger xlog.XLogger) {
	if logger == nil {
		return
	}
	inDocker := xruntime.IsRunningAtDocker()
	inK8s := xruntime.IsRunningAtKubernetes()
	fields := []zap.Field{
		zap.Bool("docker", inDocker),
		zap.Bool("kubernetes", inK8s),
	}
	if inDocker || inK8s {
		fields = append(fields, zap.String("container_id", xruntime.LoadContainerID()))
	}
	logger.Info("process container context", fields...)
}
