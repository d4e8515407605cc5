package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry            = (*ProviderRegistry)(nil)
	_ IntegrationService  = (*Service)(nil)
	_ PendingConnectStore = (*MemoryPendingConnectStore)(nil)
	_ MetricsRecorder     = NopMetricsRecorder{}

	_ ProviderConfiguration = NotionConfiguration{}
	_ ProviderConfiguration = SlackConfiguration{}
	_ ProviderConfiguration = FitbitConfiguration{}
	_ ProviderConfiguration = OuraConfiguration{}
	_ ProviderConfiguration = GenericConfiguration{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
