package main

import (
	"github.com/ldsec/trendCNN/cmd/trendcnn/cmd"
	"go.dedis.ch/onet/v3/log"
)

func main() {
	log.ErrFatal(cmd.Execute())
}
