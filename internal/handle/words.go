package handle

var adjectives = []string{
	"agile", "amber", "bold", "brave", "bright", "calm", "clever", "cosmic",
	"curious", "daring", "eager", "fancy", "fearless", "gentle", "golden",
	"happy", "humble", "jolly", "keen", "lively", "lucky", "mellow", "mighty",
	"nimble", "noble", "odd", "patient", "plucky", "proud", "quick", "quiet",
	"rapid", "rustic", "shy", "silent", "sly", "snappy", "steady", "sunny",
	"swift", "tidy", "vivid", "wise", "witty", "zesty",
}

var nouns = []string{
	"badger", "beaver", "bison", "cobra", "condor", "coyote", "crane", "dingo",
	"eagle", "falcon", "ferret", "gecko", "heron", "ibis", "jackal", "koala",
	"lemur", "lynx", "marmot", "meerkat", "moose", "newt", "ocelot", "otter",
	"owl", "panda", "pelican", "puffin", "quokka", "raven", "salmon", "seal",
	"sparrow", "tapir", "tiger", "toucan", "turtle", "viper", "walrus", "wombat",
	"yak", "zebra",
}
