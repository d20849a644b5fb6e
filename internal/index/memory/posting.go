package memory

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     string
	Frequency int
}

// PostingList is the set of postings for one term, ordered by DocID.
type PostingList []Posting

// TermEntry pairs a term with its postings, as returned by Snapshot.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// phoneticPrefix keeps phonetic codes apart from word tokens in the term
// dictionary.
const phoneticPrefix = "~"
