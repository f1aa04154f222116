package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Authorizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "b2_authorizations_total",
		Help: "Calls to b2_authorize_account, partitioned by result",
	}, []string{"result"})

	AccountInfoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "b2_account_info_lookups_total",
		Help: "Account info cache lookups, partitioned by store type and hit or miss",
	}, []string{"store", "result"})

	FileInfoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "b2_file_info_lookups_total",
		Help: "File info cache lookups, partitioned by hit or miss",
	}, []string{"result"})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "b2_proxy_downloads_total",
		Help: "Files streamed through the proxy, partitioned by tier and response code",
	}, []string{"tier", "code"})
)

const (
	Hit  = "hit"
	Miss = "miss"
)
