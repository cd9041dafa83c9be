package main

import (
	batchcmd "artifetch/cmd/artifetch/batch"
	cachecmd "artifetch/cmd/artifetch/cache"
	fetchcmd "artifetch/cmd/artifetch/fetch"
	historycmd "artifetch/cmd/artifetch/history"
)

func init() {
	Registry.FromGetter(fetchcmd.GetCommand)
	Registry.FromGetter(batchcmd.GetCommand)
	Registry.FromGetter(cachecmd.GetCommand)
	Registry.FromGetter(historycmd.GetCommand)
}
