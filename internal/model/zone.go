package model

import "time"

// AuthorityZone is the fixed civil offset ARCA uses for dates without an
// explicit offset (UTC-03:00, no daylight saving)
var AuthorityZone = time.FixedZone("ART", -3*60*60)
