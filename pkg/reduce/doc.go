package reduce

// reduce contains the prefix-length reduction machinery: splitting a CIDR
// over a restricted set of prefix lengths, and choosing which lengths to
// keep so that the total entry count stays under an acceptable ceiling.
