package relay

import (
	"flag"

	"github.com/zachfi/zkit/pkg/util"
)

// defaultMetaint is the interval Icecast uses for listeners asking for metadata.
const defaultMetaint = 16000

type Config struct {
	Upstream      string `yaml:"upstream,omitempty"`
	Path          string `yaml:"path,omitempty"`
	Metaint       int    `yaml:"metaint,omitempty"`
	Name          string `yaml:"name,omitempty"`
	ICYStatusLine bool   `yaml:"icy-status-line,omitempty"` // answer with "ICY 200 OK" like a SHOUTcast v1 server
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Upstream, util.PrefixConfig(prefix, "upstream"), "", "The stream or playlist URL to relay. The relay serves nothing when empty.")
	f.StringVar(&cfg.Path, util.PrefixConfig(prefix, "path"), "/stream", "HTTP path listeners connect to.")
	f.IntVar(&cfg.Metaint, util.PrefixConfig(prefix, "metaint"), defaultMetaint, "Audio bytes between metadata blocks for listeners sending Icy-MetaData: 1.")
	f.StringVar(&cfg.Name, util.PrefixConfig(prefix, "name"), "", "icy-name announced to listeners. The upstream name is used when empty.")
	f.BoolVar(&cfg.ICYStatusLine, util.PrefixConfig(prefix, "icy-status-line"), false, "Answer listeners with a legacy \"ICY 200 OK\" status line instead of HTTP.")
}
